package payment

import (
	"context"
	"fmt"
	"strings"
)

var keyPrefixes = []string{"sk_test_", "sk_live_", "rk_test_", "rk_live_"}

// Configuration is the provider account setup. The secret key must never
// leave the process through any read API.
type Configuration struct {
	SecretKey        string
	AllowedCountries []string
}

// NewConfiguration validates and normalizes a configuration supplied by an admin.
func NewConfiguration(secretKey string, countries []string) (Configuration, error) {
	key := strings.TrimSpace(secretKey)
	if !validKey(key) {
		return Configuration{}, ErrInvalidKeyFormat
	}

	normalized := make([]string, 0, len(countries))
	seen := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		code := strings.ToUpper(strings.TrimSpace(c))
		if !validCountry(code) {
			return Configuration{}, fmt.Errorf("%w: %q", ErrInvalidCountry, c)
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		normalized = append(normalized, code)
	}

	return Configuration{SecretKey: key, AllowedCountries: normalized}, nil
}

func (c Configuration) IsZero() bool { return c.SecretKey == "" }

// Live reports whether the key points at the live environment.
func (c Configuration) Live() bool {
	return strings.HasPrefix(c.SecretKey, "sk_live_") || strings.HasPrefix(c.SecretKey, "rk_live_")
}

func (c Configuration) String() string {
	if c.IsZero() {
		return "payment.Configuration{unset}"
	}
	return fmt.Sprintf("payment.Configuration{key=%s countries=%v}", redact(c.SecretKey), c.AllowedCountries)
}

// ConfigStore holds the active configuration, read by the gateway on every call.
type ConfigStore interface {
	Load(ctx context.Context) (Configuration, bool)
	Store(ctx context.Context, cfg Configuration) error
}

func validKey(key string) bool {
	for _, p := range keyPrefixes {
		if strings.HasPrefix(key, p) && len(key) > len(p) && !strings.ContainsAny(key, " \t\r\n") {
			return true
		}
	}
	return false
}

func validCountry(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func redact(key string) string {
	for _, p := range keyPrefixes {
		if strings.HasPrefix(key, p) {
			return p + "****"
		}
	}
	return "****"
}
