package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/auth/authfake"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "tim"
	testPassword = "sausages"
)

type testFixture struct {
	provider *authfake.FakeProvider
	user     auth.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	p := authfake.NewFakeProvider()
	p.AddUser(testUsername, testPassword, []string{"a", "admin"}, []string{"read", "write"})

	u, err := p.Authenticate(context.Background(), auth.Credentials{"username": testUsername, "password": testPassword})
	require.NoError(t, err)

	return &testFixture{provider: p, user: u}
}

func TestUser_HasRoleMemoizes(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := f.user.HasRole(ctx, "admin")
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.EqualValues(t, 1, f.provider.Resolutions())

	// negative answers are cached too
	for i := 0; i < 2; i++ {
		ok, err := f.user.HasRole(ctx, "root")
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.EqualValues(t, 2, f.provider.Resolutions())
}

func TestUser_ClearCacheForcesOneResolution(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	before := f.provider.Resolutions()

	f.user.ClearCache()
	_, err = f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	_, err = f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, before+1, f.provider.Resolutions())

	// clearing an empty cache behaves the same
	f.user.ClearCache()
	f.user.ClearCache()
	_, err = f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	require.Equal(t, before+2, f.provider.Resolutions())
}

func TestUser_HasRolesAndSemantics(t *testing.T) {
	p := authfake.NewFakeProvider()
	p.AddUser(testUsername, testPassword, []string{"a"}, []string{"read"})
	u, err := p.Authenticate(context.Background(), auth.Credentials{"username": testUsername, "password": testPassword})
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := u.HasRoles(ctx, "a", "b")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = u.HasRoles(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = u.HasRoles(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = u.HasPermissions(ctx, "read", "write")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = u.HasPermissions(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUser_HasRolesShortCircuits(t *testing.T) {
	f := setupTestFixture(t)

	ok, err := f.user.HasRoles(context.Background(), "nope", "admin", "a")
	require.NoError(t, err)
	require.False(t, ok)
	require.EqualValues(t, 1, f.provider.Resolutions())
}

func TestUser_PrincipalIsDefensiveCopy(t *testing.T) {
	u := auth.NewBaseUser(authfake.Kind, map[string]any{
		"username": testUsername,
		"groups":   []any{"x", "y"},
		"profile":  map[string]any{"email": "tim@example.com"},
	}, nil)

	p := u.Principal()
	p["username"] = "mallory"
	p["groups"].([]any)[0] = "z"
	p["profile"].(map[string]any)["email"] = "evil@example.com"

	again := u.Principal()
	require.Equal(t, testUsername, again["username"])
	require.Equal(t, "x", again["groups"].([]any)[0])
	require.Equal(t, "tim@example.com", again["profile"].(map[string]any)["email"])
}

func TestUser_DetachedUserFails(t *testing.T) {
	u := auth.NewBaseUser(authfake.Kind, map[string]any{"username": testUsername}, nil)

	_, err := u.HasRole(context.Background(), "admin")
	require.ErrorIs(t, err, auth.ErrUnboundProvider)

	_, err = u.HasPermission(context.Background(), "read")
	require.ErrorIs(t, err, auth.ErrUnboundProvider)

	_, err = u.HasRoles(context.Background(), "admin")
	require.ErrorIs(t, err, auth.ErrUnboundProvider)
}

func TestUser_SetAuthProviderTypeMismatch(t *testing.T) {
	u := auth.NewBaseUser(authfake.Kind, map[string]any{"username": testUsername}, nil)

	err := u.SetAuthProvider(authfake.NewFakeProviderOfKind("jwt"))
	require.ErrorIs(t, err, auth.ErrTypeMismatch)

	err = u.SetAuthProvider(nil)
	require.ErrorIs(t, err, auth.ErrUnboundProvider)

	err = u.SetAuthProvider(auth.NewChain())
	require.ErrorIs(t, err, auth.ErrTypeMismatch)
}

func TestUser_SnapshotRestoreRebind(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	ok, err := f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)

	base, ok := f.user.(*auth.BaseUser)
	require.True(t, ok)

	data, err := json.Marshal(base.Snapshot())
	require.NoError(t, err)

	var state auth.State
	require.NoError(t, json.Unmarshal(data, &state))

	restored := auth.Restore(state)
	require.Equal(t, f.user.Principal(), restored.Principal())

	_, err = restored.HasRole(ctx, "admin")
	require.ErrorIs(t, err, auth.ErrUnboundProvider)

	require.NoError(t, restored.SetAuthProvider(f.provider))
	before := f.provider.Resolutions()

	ok, err = restored.HasRole(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, before, f.provider.Resolutions(), "cached answer survives the snapshot")

	ok, err = restored.HasPermission(ctx, "write")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, before+1, f.provider.Resolutions())
}

func TestUser_ResolutionErrorNotCached(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	boom := errors.New("store down")

	f.provider.FailResolutions(boom)
	_, err := f.user.HasRole(ctx, "admin")
	require.ErrorIs(t, err, boom)

	f.provider.FailResolutions(nil)
	ok, err := f.user.HasRole(ctx, "admin")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestUser_ConcurrentChecks(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.user.HasRole(ctx, "admin")
			require.NoError(t, err)
			require.True(t, ok)
			if i%10 == 0 {
				f.user.ClearCache()
			}
		}()
	}
	wg.Wait()
}
