// Package realm is the username/password auth provider. It verifies
// passwords from any store.CredentialStore with a hashing.Strategy and
// resolves roles and permissions back through the store.
package realm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/auth/permission"
	"github.com/jrsteele09/go-auth-core/hashing"
	"github.com/jrsteele09/go-auth-core/internal/utils"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Kind              = "realm"
	DefaultRolePrefix = "role:"
	UsernameField     = "username"
	PasswordField     = "password"
)

var (
	_ auth.Provider = (*Provider)(nil)
	_ auth.Resolver = (*Provider)(nil)
)

type Provider struct {
	store      store.CredentialStore
	strategy   *hashing.Strategy
	rolePrefix string
	detailed   bool
	logger     zerolog.Logger

	// decoy is verified for unknown principals so they cost a hash too
	decoyOnce sync.Once
	decoy     store.Record
}

type Option func(*Provider)

// WithRolePrefix sets the prefix that turns a permission check into a role
// check, so HasPermission("role:admin") asks for the admin role.
func WithRolePrefix(prefix string) Option {
	return func(p *Provider) {
		p.rolePrefix = prefix
	}
}

// WithDetailedErrors makes failures say whether the principal was unknown
// or the password wrong. Off by default to avoid user enumeration.
func WithDetailedErrors(detailed bool) Option {
	return func(p *Provider) {
		p.detailed = detailed
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func New(credentials store.CredentialStore, strategy *hashing.Strategy, options ...Option) (*Provider, error) {
	if credentials == nil {
		return nil, fmt.Errorf("[realm.New] credential store is required: %w", auth.ErrInvalidConfig)
	}
	if strategy == nil {
		return nil, fmt.Errorf("[realm.New] hash strategy is required: %w", auth.ErrInvalidConfig)
	}

	p := &Provider{
		store:      credentials,
		strategy:   strategy,
		rolePrefix: DefaultRolePrefix,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

func (p *Provider) Kind() string {
	return Kind
}

// Strategy returns the hash strategy used to verify passwords.
func (p *Provider) Strategy() *hashing.Strategy {
	return p.strategy
}

func (p *Provider) Authenticate(ctx context.Context, credentials auth.Credentials) (auth.User, error) {
	username, err := credentials.Require(UsernameField)
	if err != nil {
		return nil, err
	}
	password, ok := credentials[PasswordField].(string)
	if !ok {
		return nil, auth.NewAuthenticationError(auth.ReasonMissingField, fmt.Errorf("credentials must contain %q", PasswordField), false)
	}

	record, err := p.store.FindCredentials(ctx, username)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			p.verifyDecoy(password)
			return nil, p.fail(username, auth.ReasonUnknownPrincipal, nil)
		case errors.Is(err, store.ErrAmbiguous):
			return nil, p.fail(username, auth.ReasonAmbiguousPrincipal, err)
		default:
			if !errors.Is(err, auth.ErrBackingStore) {
				err = fmt.Errorf("%w: %w", auth.ErrBackingStore, err)
			}
			return nil, p.fail(username, auth.ReasonBackingStore, err)
		}
	}

	if !p.strategy.Verify(password, record) {
		return nil, p.fail(username, auth.ReasonWrongPassword, nil)
	}

	user, err := newUser(p, username)
	if err != nil {
		return nil, err
	}
	p.logger.Debug().Str("principal", username).Msg("realm: authenticated")
	return user, nil
}

func (p *Provider) verifyDecoy(password string) {
	p.decoyOnce.Do(func() {
		salt, err := hashing.GenerateSalt()
		if err != nil {
			return
		}
		p.decoy.Salt = salt
		p.decoy.StoredHash, _ = p.strategy.ComputeHash(salt, p.decoy)
	})
	p.strategy.Verify(password, p.decoy)
}

func (p *Provider) fail(username, reason string, cause error) error {
	if reason == auth.ReasonBackingStore {
		p.logger.Warn().Err(cause).Str("principal", username).Msg("realm: credential store failure")
	} else {
		p.logger.Debug().Str("principal", username).Str("reason", reason).Msg("realm: authentication failed")
	}

	if !p.detailed {
		reason = auth.ReasonInvalidCredentials
	}
	return auth.NewAuthenticationError(reason, cause, p.detailed)
}

// InsertUser hashes password with the provider's strategy and stores the
// principal. A per-user salt is generated for the Column salt style.
func (p *Provider) InsertUser(ctx context.Context, username, password string, roles, permissions []string) error {
	record := store.Record{PrincipalID: username, Roles: roles, Permissions: permissions}
	if p.strategy.SaltStyle() == hashing.Column && p.strategy.Algorithm() != hashing.Bcrypt {
		salt, err := hashing.GenerateSalt()
		if err != nil {
			return err
		}
		record.Salt = salt
	}

	hash, err := p.strategy.ComputeHash(password, record)
	if err != nil {
		return fmt.Errorf("[realm.InsertUser] %w", err)
	}
	record.StoredHash = hash

	if err := p.store.InsertUser(ctx, record); err != nil {
		return fmt.Errorf("[realm.InsertUser] %w", err)
	}
	return nil
}

func (p *Provider) ResolveRole(ctx context.Context, user auth.User, role string) (bool, error) {
	username, err := principalName(user)
	if err != nil {
		return false, err
	}
	roles, err := p.store.Roles(ctx, username)
	if err != nil {
		return false, fmt.Errorf("[realm.ResolveRole] %w", err)
	}
	return utils.Contains(roles, role), nil
}

// ResolvePermission matches required against the principal's permissions
// with wildcard semantics, so a granted "newsletter:edit:*" covers
// "newsletter:edit:13".
func (p *Provider) ResolvePermission(ctx context.Context, user auth.User, required string) (bool, error) {
	if p.rolePrefix != "" && strings.HasPrefix(required, p.rolePrefix) {
		return p.ResolveRole(ctx, user, strings.TrimPrefix(required, p.rolePrefix))
	}

	username, err := principalName(user)
	if err != nil {
		return false, err
	}
	perms, err := p.store.Permissions(ctx, username)
	if err != nil {
		return false, fmt.Errorf("[realm.ResolvePermission] %w", err)
	}
	return permission.ImpliedByAny(perms, required), nil
}

func principalName(user auth.User) (string, error) {
	username, _ := user.Principal()[UsernameField].(string)
	if username == "" {
		return "", fmt.Errorf("[realm] principal has no %q: %w", UsernameField, auth.ErrTypeMismatch)
	}
	return username, nil
}
