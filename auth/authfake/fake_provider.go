package authfake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-auth-core/auth"
)

const Kind = "fake"

var (
	_ auth.Provider = (*FakeProvider)(nil)
	_ auth.Resolver = (*FakeProvider)(nil)
)

type fakeAccount struct {
	password    string
	roles       map[string]bool
	permissions map[string]bool
}

// FakeProvider is an in-memory username/password provider that counts
// backend resolutions.
type FakeProvider struct {
	kind        string
	lock        sync.RWMutex
	accounts    map[string]*fakeAccount
	resolutions atomic.Int64
	failResolve error
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{kind: Kind, accounts: make(map[string]*fakeAccount)}
}

// NewFakeProviderOfKind returns a provider reporting the given kind.
func NewFakeProviderOfKind(kind string) *FakeProvider {
	p := NewFakeProvider()
	p.kind = kind
	return p
}

func (p *FakeProvider) Kind() string {
	return p.kind
}

// AddUser registers an account.
func (p *FakeProvider) AddUser(username, password string, roles []string, permissions []string) {
	p.lock.Lock()
	defer p.lock.Unlock()

	acc := &fakeAccount{password: password, roles: map[string]bool{}, permissions: map[string]bool{}}
	for _, r := range roles {
		acc.roles[r] = true
	}
	for _, perm := range permissions {
		acc.permissions[perm] = true
	}
	p.accounts[username] = acc
}

// FailResolutions makes every subsequent resolution return err.
func (p *FakeProvider) FailResolutions(err error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.failResolve = err
}

// Resolutions returns the number of backend role and permission lookups.
func (p *FakeProvider) Resolutions() int64 {
	return p.resolutions.Load()
}

func (p *FakeProvider) Authenticate(_ context.Context, credentials auth.Credentials) (auth.User, error) {
	username, err := credentials.Require("username")
	if err != nil {
		return nil, err
	}
	password, _ := credentials.String("password")

	p.lock.RLock()
	acc, ok := p.accounts[username]
	p.lock.RUnlock()
	if !ok || acc.password != password {
		return nil, auth.NewAuthenticationError(auth.ReasonInvalidCredentials, nil, false)
	}

	u := auth.NewBaseUser(p.kind, map[string]any{"username": username}, nil)
	if err := u.SetAuthProvider(p); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *FakeProvider) ResolveRole(_ context.Context, user auth.User, role string) (bool, error) {
	return p.resolve(user, func(acc *fakeAccount) bool { return acc.roles[role] })
}

func (p *FakeProvider) ResolvePermission(_ context.Context, user auth.User, permission string) (bool, error) {
	return p.resolve(user, func(acc *fakeAccount) bool { return acc.permissions[permission] })
}

func (p *FakeProvider) resolve(user auth.User, check func(*fakeAccount) bool) (bool, error) {
	p.resolutions.Add(1)

	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.failResolve != nil {
		return false, p.failResolve
	}
	username, _ := user.Principal()["username"].(string)
	acc, ok := p.accounts[username]
	if !ok {
		return false, errors.New("unknown user")
	}
	return check(acc), nil
}
