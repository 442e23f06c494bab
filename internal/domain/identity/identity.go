package identity

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	ErrUnauthorized    = errors.New("identity: unauthorized")
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the caller placed on the context by the auth middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ID == "" {
		return Principal{}, false
	}
	return p, true
}

// RequireAdmin returns ErrUnauthorized unless p carries the admin role.
func RequireAdmin(p Principal) error {
	if !p.IsAdmin() {
		return ErrUnauthorized
	}
	return nil
}
