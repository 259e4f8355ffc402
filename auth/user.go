package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-core/internal/utils"
)

// User is an authenticated identity.
type User interface {
	// Principal returns a copy of the identity attributes.
	Principal() map[string]any
	HasRole(ctx context.Context, role string) (bool, error)
	HasPermission(ctx context.Context, permission string) (bool, error)
	// HasRoles reports whether every role is held. An empty list is true.
	HasRoles(ctx context.Context, roles ...string) (bool, error)
	// HasPermissions reports whether every permission is held. An empty list is true.
	HasPermissions(ctx context.Context, permissions ...string) (bool, error)
	ClearCache()
	SetAuthProvider(provider Provider) error
	Provider() Provider
}

var _ User = (*BaseUser)(nil)

// BaseUser implements User and is embedded by the concrete user types of
// each provider. Role and permission answers, positive and negative, are
// memoized until ClearCache.
type BaseUser struct {
	kind  string
	owner User

	mu          sync.RWMutex
	principal   map[string]any
	provider    Provider
	resolver    Resolver
	roles       map[string]bool
	permissions map[string]bool
}

// NewBaseUser creates an unbound user of the given provider kind. owner is
// the outer value handed to the Resolver; nil means the BaseUser itself.
func NewBaseUser(kind string, principal map[string]any, owner User) *BaseUser {
	u := &BaseUser{
		kind:        kind,
		owner:       owner,
		principal:   utils.CopyMap(principal),
		roles:       make(map[string]bool),
		permissions: make(map[string]bool),
	}
	if u.principal == nil {
		u.principal = make(map[string]any)
	}
	return u
}

// Kind returns the kind of provider that created the user.
func (u *BaseUser) Kind() string {
	return u.kind
}

func (u *BaseUser) Principal() map[string]any {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return utils.CopyMap(u.principal)
}

// Reset replaces the principal attributes and drops the memo cache. Token
// users call it after a refresh.
func (u *BaseUser) Reset(principal map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.principal = utils.CopyMap(principal)
	if u.principal == nil {
		u.principal = make(map[string]any)
	}
	u.roles = make(map[string]bool)
	u.permissions = make(map[string]bool)
}

func (u *BaseUser) Provider() Provider {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.provider
}

// SetAuthProvider binds the user to a live provider. The provider must be
// of the kind that created the user and must resolve roles.
func (u *BaseUser) SetAuthProvider(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("[BaseUser.SetAuthProvider] nil provider: %w", ErrUnboundProvider)
	}
	if provider.Kind() != u.kind {
		return fmt.Errorf("[BaseUser.SetAuthProvider] user of kind %q cannot bind to %q: %w", u.kind, provider.Kind(), ErrTypeMismatch)
	}
	resolver, ok := provider.(Resolver)
	if !ok {
		return fmt.Errorf("[BaseUser.SetAuthProvider] provider %q does not resolve roles: %w", provider.Kind(), ErrTypeMismatch)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.provider = provider
	u.resolver = resolver
	return nil
}

func (u *BaseUser) ClearCache() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.roles = make(map[string]bool)
	u.permissions = make(map[string]bool)
}

func (u *BaseUser) HasRole(ctx context.Context, role string) (bool, error) {
	return u.check(ctx, role, false)
}

func (u *BaseUser) HasPermission(ctx context.Context, permission string) (bool, error) {
	return u.check(ctx, permission, true)
}

func (u *BaseUser) HasRoles(ctx context.Context, roles ...string) (bool, error) {
	for _, role := range roles {
		ok, err := u.HasRole(ctx, role)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (u *BaseUser) HasPermissions(ctx context.Context, permissions ...string) (bool, error) {
	for _, permission := range permissions {
		ok, err := u.HasPermission(ctx, permission)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (u *BaseUser) check(ctx context.Context, key string, permission bool) (bool, error) {
	u.mu.RLock()
	resolver := u.resolver
	cache := u.roles
	if permission {
		cache = u.permissions
	}
	cached, hit := cache[key]
	u.mu.RUnlock()

	if resolver == nil {
		return false, ErrUnboundProvider
	}
	if hit {
		return cached, nil
	}

	var (
		result bool
		err    error
	)
	if permission {
		result, err = resolver.ResolvePermission(ctx, u.self(), key)
	} else {
		result, err = resolver.ResolveRole(ctx, u.self(), key)
	}
	if err != nil {
		return false, err
	}

	u.mu.Lock()
	if permission {
		u.permissions[key] = result
	} else {
		u.roles[key] = result
	}
	u.mu.Unlock()
	return result, nil
}

func (u *BaseUser) self() User {
	if u.owner != nil {
		return u.owner
	}
	return u
}

// State is the serialisable form of a user.
type State struct {
	Kind        string          `json:"kind"`
	Principal   map[string]any  `json:"principal"`
	Roles       map[string]bool `json:"roles,omitempty"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

// Snapshot captures the principal and the memo cache.
func (u *BaseUser) Snapshot() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return State{
		Kind:        u.kind,
		Principal:   utils.CopyMap(u.principal),
		Roles:       copyBools(u.roles),
		Permissions: copyBools(u.permissions),
	}
}

// Restore rebuilds a detached user from a snapshot. SetAuthProvider must be
// called before any role or permission check.
func Restore(state State) *BaseUser {
	u := NewBaseUser(state.Kind, state.Principal, nil)
	for k, v := range state.Roles {
		u.roles[k] = v
	}
	for k, v := range state.Permissions {
		u.permissions[k] = v
	}
	return u
}

func copyBools(in map[string]bool) map[string]bool {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
