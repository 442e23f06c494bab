package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
)

// Claims are the token fields the service reads. sub is the buyer id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 bearer tokens.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Authenticate parses an Authorization header value.
func (v *JWTVerifier) Authenticate(header string) (domidentity.Principal, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return domidentity.Principal{}, fmt.Errorf("%w: missing bearer token", domidentity.ErrUnauthenticated)
	}
	return v.Verify(strings.TrimSpace(raw))
}

func (v *JWTVerifier) Verify(tokenString string) (domidentity.Principal, error) {
	if len(v.secret) == 0 {
		return domidentity.Principal{}, fmt.Errorf("%w: no signing secret configured", domidentity.ErrUnauthenticated)
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domidentity.Principal{}, fmt.Errorf("%w: %v", domidentity.ErrUnauthenticated, err)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return domidentity.Principal{}, fmt.Errorf("%w: unexpected issuer %q", domidentity.ErrUnauthenticated, claims.Issuer)
	}
	if claims.Subject == "" {
		return domidentity.Principal{}, fmt.Errorf("%w: token has no subject", domidentity.ErrUnauthenticated)
	}

	role := domidentity.RoleUser
	if domidentity.Role(claims.Role) == domidentity.RoleAdmin {
		role = domidentity.RoleAdmin
	}
	return domidentity.Principal{ID: claims.Subject, Role: role}, nil
}

// Issue signs a token for p. Used by tests and local tooling.
func (v *JWTVerifier) Issue(p domidentity.Principal, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", errors.New("identity: no signing secret configured")
	}
	now := time.Now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
