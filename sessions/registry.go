// Package sessions keeps authenticated users behind opaque login IDs. Each
// login has an idle timeout that RefreshLoginSession pushes back, and a
// background reaper removes sessions once they expire.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout      = 30 * time.Minute
	DefaultReaperPeriod = time.Minute
)

type Registry struct {
	provider       auth.Provider
	repo           Repo
	defaultTimeout time.Duration
	nowFunc        func() time.Time
	logger         zerolog.Logger

	// writes serialises refresh against logout and reaping so a refresh cannot bring
	// back a session that was just removed
	writes sync.Mutex

	reaperLock   sync.Mutex
	reaperPeriod time.Duration
	stop         chan struct{}
	done         chan struct{}
}

type Option func(*Registry)

func WithDefaultTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.defaultTimeout = timeout
	}
}

func WithReaperPeriod(period time.Duration) Option {
	return func(r *Registry) {
		r.reaperPeriod = period
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

func WithRepo(repo Repo) Option {
	return func(r *Registry) {
		r.repo = repo
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func New(provider auth.Provider, options ...Option) (*Registry, error) {
	if provider == nil {
		return nil, fmt.Errorf("[sessions.New] auth provider is required: %w", auth.ErrInvalidConfig)
	}

	r := &Registry{
		provider:       provider,
		defaultTimeout: DefaultTimeout,
		reaperPeriod:   DefaultReaperPeriod,
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}

	if r.defaultTimeout <= 0 || r.reaperPeriod <= 0 {
		return nil, fmt.Errorf("[sessions.New] timeout and reaper period must be positive: %w", auth.ErrInvalidConfig)
	}
	if r.repo == nil {
		r.repo = NewMemoryRepo()
	}
	if r.nowFunc == nil {
		r.nowFunc = time.Now
	}
	return r, nil
}

// Login authenticates credentials and returns a new login ID valid for the
// default timeout.
func (r *Registry) Login(ctx context.Context, credentials auth.Credentials) (string, error) {
	return r.LoginWithTimeout(ctx, credentials, r.defaultTimeout)
}

func (r *Registry) LoginWithTimeout(ctx context.Context, credentials auth.Credentials, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", fmt.Errorf("[Registry.LoginWithTimeout] timeout must be positive: %w", auth.ErrInvalidConfig)
	}

	user, err := r.provider.Authenticate(ctx, credentials)
	if err != nil {
		return "", err
	}

	now := r.nowFunc()
	session := Session{
		ID:        uuid.New().String(),
		User:      user,
		Timeout:   timeout,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
	}
	if err := r.repo.Upsert(ctx, session); err != nil {
		return "", fmt.Errorf("[Registry.LoginWithTimeout] %w: %w", auth.ErrBackingStore, err)
	}

	r.logger.Debug().Str("session", session.ID).Dur("timeout", timeout).Msg("sessions: login")
	return session.ID, nil
}

// RefreshLoginSession restarts the idle timeout of a live session.
func (r *Registry) RefreshLoginSession(ctx context.Context, id string) error {
	r.writes.Lock()
	defer r.writes.Unlock()

	session, err := r.lookup(ctx, id)
	if err != nil {
		return err
	}
	session.ExpiresAt = r.nowFunc().Add(session.Timeout)
	if err := r.repo.Upsert(ctx, session); err != nil {
		return fmt.Errorf("[Registry.RefreshLoginSession] %w: %w", auth.ErrBackingStore, err)
	}
	return nil
}

// Logout removes the session. Unknown IDs are ignored.
func (r *Registry) Logout(ctx context.Context, id string) error {
	r.writes.Lock()
	defer r.writes.Unlock()

	if err := r.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("[Registry.Logout] %w: %w", auth.ErrBackingStore, err)
	}
	r.logger.Debug().Str("session", id).Msg("sessions: logout")
	return nil
}

// User returns the user behind a live session.
func (r *Registry) User(ctx context.Context, id string) (auth.User, error) {
	session, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.User, nil
}

func (r *Registry) HasRole(ctx context.Context, id, role string) (bool, error) {
	user, err := r.User(ctx, id)
	if err != nil {
		return false, err
	}
	return user.HasRole(ctx, role)
}

func (r *Registry) HasPermission(ctx context.Context, id, permission string) (bool, error) {
	user, err := r.User(ctx, id)
	if err != nil {
		return false, err
	}
	return user.HasPermission(ctx, permission)
}

func (r *Registry) HasRoles(ctx context.Context, id string, roles ...string) (bool, error) {
	user, err := r.User(ctx, id)
	if err != nil {
		return false, err
	}
	return user.HasRoles(ctx, roles...)
}

func (r *Registry) HasPermissions(ctx context.Context, id string, permissions ...string) (bool, error) {
	user, err := r.User(ctx, id)
	if err != nil {
		return false, err
	}
	return user.HasPermissions(ctx, permissions...)
}

// lookup treats expired sessions as unknown even before they are reaped.
func (r *Registry) lookup(ctx context.Context, id string) (Session, error) {
	session, err := r.repo.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		return Session{}, fmt.Errorf("[Registry] %q: %w", id, auth.ErrUnknownSession)
	case err != nil:
		return Session{}, fmt.Errorf("[Registry] %w: %w", auth.ErrBackingStore, err)
	case session.Expired(r.nowFunc()):
		return Session{}, fmt.Errorf("[Registry] %q expired: %w", id, auth.ErrUnknownSession)
	}
	return session, nil
}

// Reap removes expired sessions once and returns how many were removed.
// It is serialized with refresh and logout.
func (r *Registry) Reap(ctx context.Context) (int, error) {
	r.writes.Lock()
	defer r.writes.Unlock()

	removed, err := r.repo.DeleteExpired(ctx, r.nowFunc())
	if err != nil {
		return removed, fmt.Errorf("[Registry.Reap] %w: %w", auth.ErrBackingStore, err)
	}
	return removed, nil
}

// SetReaperPeriod changes the sweep interval. A running reaper is
// restarted with the new period.
func (r *Registry) SetReaperPeriod(period time.Duration) error {
	if period <= 0 {
		return fmt.Errorf("[Registry.SetReaperPeriod] period must be positive: %w", auth.ErrInvalidConfig)
	}

	r.reaperLock.Lock()
	defer r.reaperLock.Unlock()
	r.reaperPeriod = period
	if r.stop != nil {
		r.stopLocked()
		r.startLocked()
	}
	return nil
}

// Start runs the reaper in the background until Stop. Calling Start on a
// running registry does nothing.
func (r *Registry) Start() {
	r.reaperLock.Lock()
	defer r.reaperLock.Unlock()
	if r.stop == nil {
		r.startLocked()
	}
}

// Stop halts the reaper and waits for it to exit.
func (r *Registry) Stop() {
	r.reaperLock.Lock()
	defer r.reaperLock.Unlock()
	if r.stop != nil {
		r.stopLocked()
	}
}

func (r *Registry) startLocked() {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.reapLoop(r.reaperPeriod, r.stop, r.done)
}

func (r *Registry) stopLocked() {
	close(r.stop)
	<-r.done
	r.stop, r.done = nil, nil
}

func (r *Registry) reapLoop(period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case <-ticker.C:
			removed, err := r.Reap(context.Background())
			if err != nil {
				r.logger.Warn().Err(err).Msg("sessions: reaper sweep failed")
				continue
			}
			if removed > 0 {
				r.logger.Debug().Int("removed", removed).Msg("sessions: reaped expired sessions")
			}
		case <-stop:
			return
		}
	}
}
