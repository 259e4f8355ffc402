package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-auth-core/auth"
)

var ErrNotFound = errors.New("session not found")

// Session is one logged in user.
type Session struct {
	ID        string
	User      auth.User
	Timeout   time.Duration // idle timeout applied on every refresh
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session deadline has passed at now.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Repo defines the interface for login session storage.
type Repo interface {
	// Upsert creates or replaces a session
	Upsert(ctx context.Context, session Session) error

	// Get retrieves a session by ID, or ErrNotFound
	Get(ctx context.Context, sessionID string) (Session, error)

	// Delete removes a session by ID. Missing sessions are not an error.
	Delete(ctx context.Context, sessionID string) error

	// DeleteExpired removes sessions whose deadline is not after now and
	// returns how many were removed
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
