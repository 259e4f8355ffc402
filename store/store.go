// Package store defines the credential store contract password realms
// authenticate against.
package store

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-auth-core/hashing"
)

var (
	ErrNotFound = errors.New("principal not found")
	// ErrAmbiguous is returned when a principal id matches more than one record.
	ErrAmbiguous = errors.New("principal is not unique")
)

// Record holds the stored credentials of one principal.
type Record struct {
	PrincipalID string
	StoredHash  string
	Salt        string
	Roles       []string
	Permissions []string
}

var _ hashing.Salted = Record{}

func (r Record) GetSalt() string       { return r.Salt }
func (r Record) GetStoredHash() string { return r.StoredHash }

// CredentialStore resolves principals to credentials, roles and
// permissions. I/O failures wrap auth.ErrBackingStore.
type CredentialStore interface {
	FindCredentials(ctx context.Context, principalID string) (*Record, error)
	InsertUser(ctx context.Context, record Record) error
	Roles(ctx context.Context, principalID string) ([]string, error)
	Permissions(ctx context.Context, principalID string) ([]string, error)
}
