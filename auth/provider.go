package auth

import (
	"context"
	"fmt"
)

// Credentials is the open-ended input to Authenticate. Keys are realm
// specific: "username"/"password" for password realms, "jwt" for token
// providers, "code" for the OAuth2 authorization code flow.
type Credentials map[string]any

// String returns the value stored under key when it is a non-empty string.
func (c Credentials) String(key string) (string, bool) {
	v, ok := c[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Require returns the string stored under key, or a missing field
// AuthenticationError.
func (c Credentials) Require(key string) (string, error) {
	s, ok := c.String(key)
	if !ok {
		return "", NewAuthenticationError(ReasonMissingField, fmt.Errorf("credentials must contain %q", key), false)
	}
	return s, nil
}

// Provider authenticates a principal from credential material. Every realm
// implements it.
type Provider interface {
	Authenticate(ctx context.Context, credentials Credentials) (User, error)
	// Kind names the concrete provider type. Users restored from a snapshot
	// can only be bound to a provider of the same kind.
	Kind() string
}

// Resolver answers role and permission questions for users created by a
// provider. BaseUser calls it on a cache miss.
type Resolver interface {
	ResolveRole(ctx context.Context, user User, role string) (bool, error)
	ResolvePermission(ctx context.Context, user User, permission string) (bool, error)
}

// TokenIssuer is implemented by providers that mint bearer tokens.
type TokenIssuer interface {
	GenerateToken(claims map[string]any, options TokenOptions) (string, error)
}

// Revoker is implemented by providers that can invalidate a token they
// issued before it expires.
type Revoker interface {
	Revoke(ctx context.Context, raw string) error
}

// TokenOptions controls the registered claims and headers added by
// TokenIssuer.GenerateToken.
type TokenOptions struct {
	Issuer           string
	Audience         []string
	Subject          string
	ExpiresInSeconds int64
	ExpiresInMinutes int64
	Headers          map[string]any
	Permissions      []string
	NoTimestamp      bool
}
