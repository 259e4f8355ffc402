package sessions_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/auth/authfake"
	"github.com/jrsteele09/go-auth-core/sessions"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "tim"
	testPassword = "sausages"
)

// fakeClock is safe to advance while the reaper reads it.
type fakeClock struct {
	nanos atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.nanos.Store(time.Unix(1_700_000_000, 0).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(0, c.nanos.Load())
}

func (c *fakeClock) Advance(d time.Duration) {
	c.nanos.Add(int64(d))
}

type testFixture struct {
	clock    *fakeClock
	provider *authfake.FakeProvider
	repo     *sessions.MemoryRepo
	registry *sessions.Registry
}

func setupTestFixture(t *testing.T, options ...sessions.Option) *testFixture {
	t.Helper()
	f := &testFixture{
		clock:    newFakeClock(),
		provider: authfake.NewFakeProvider(),
		repo:     sessions.NewMemoryRepo(),
	}
	f.provider.AddUser(testUsername, testPassword, []string{"admin"}, []string{"commit", "deploy"})

	options = append([]sessions.Option{
		sessions.WithNowFunc(f.clock.Now),
		sessions.WithRepo(f.repo),
		sessions.WithLogger(zerolog.Nop()),
	}, options...)
	r, err := sessions.New(f.provider, options...)
	require.NoError(t, err)
	f.registry = r
	t.Cleanup(r.Stop)
	return f
}

func creds() auth.Credentials {
	return auth.Credentials{"username": testUsername, "password": testPassword}
}

func TestLoginAndChecks(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	id, err := f.registry.Login(ctx, creds())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ok, err := f.registry.HasRole(ctx, id, "admin")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.registry.HasPermissions(ctx, id, "commit", "deploy")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.registry.HasRoles(ctx, id, "admin", "root")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.registry.HasPermission(ctx, id, "delete")
	require.NoError(t, err)
	require.False(t, ok)

	user, err := f.registry.User(ctx, id)
	require.NoError(t, err)
	require.Equal(t, testUsername, user.Principal()["username"])
}

func TestLogin_Failure(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.registry.Login(context.Background(), auth.Credentials{"username": testUsername, "password": "chips"})
	require.ErrorIs(t, err, auth.ErrAuthentication)
	require.Equal(t, 0, f.repo.Len())

	_, err = f.registry.LoginWithTimeout(context.Background(), creds(), 0)
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestSessionTimeout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	id, err := f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	_, err = f.registry.HasRole(ctx, id, "admin")
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.registry.HasRole(ctx, id, "admin")
	require.ErrorIs(t, err, auth.ErrUnknownSession)

	require.Equal(t, 1, f.repo.Len())
	require.ErrorIs(t, f.registry.RefreshLoginSession(ctx, id), auth.ErrUnknownSession)
}

func TestRefreshLoginSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	id, err := f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)

	f.clock.Advance(50 * time.Second)
	require.NoError(t, f.registry.RefreshLoginSession(ctx, id))

	f.clock.Advance(50 * time.Second)
	ok, err := f.registry.HasRole(ctx, id, "admin")
	require.NoError(t, err)
	require.True(t, ok)

	require.ErrorIs(t, f.registry.RefreshLoginSession(ctx, "nope"), auth.ErrUnknownSession)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	id, err := f.registry.Login(ctx, creds())
	require.NoError(t, err)

	require.NoError(t, f.registry.Logout(ctx, id))
	require.NoError(t, f.registry.Logout(ctx, id))
	require.NoError(t, f.registry.Logout(ctx, "never-existed"))

	_, err = f.registry.User(ctx, id)
	require.ErrorIs(t, err, auth.ErrUnknownSession)
}

func TestReap(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	_, err := f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)
	keep, err := f.registry.LoginWithTimeout(ctx, creds(), time.Hour)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	removed, err := f.registry.Reap(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, f.repo.Len())

	_, err = f.registry.User(ctx, keep)
	require.NoError(t, err)
}

func TestReaperLoop(t *testing.T) {
	f := setupTestFixture(t, sessions.WithReaperPeriod(time.Hour))
	ctx := context.Background()

	_, err := f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)

	f.registry.Start()
	f.registry.Start()
	require.NoError(t, f.registry.SetReaperPeriod(5*time.Millisecond))

	f.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return f.repo.Len() == 0 }, time.Second, 5*time.Millisecond)

	f.registry.Stop()
	f.registry.Stop()

	_, err = f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, f.repo.Len())

	require.ErrorIs(t, f.registry.SetReaperPeriod(0), auth.ErrInvalidConfig)
}

// pausingRepo runs onUpsert once, before the next Upsert reaches the store.
type pausingRepo struct {
	*sessions.MemoryRepo
	once     sync.Once
	armed    atomic.Bool
	onUpsert func()
}

func (r *pausingRepo) Upsert(ctx context.Context, session sessions.Session) error {
	if r.armed.Load() {
		r.once.Do(r.onUpsert)
	}
	return r.MemoryRepo.Upsert(ctx, session)
}

func TestRefreshRacingReap(t *testing.T) {
	repo := &pausingRepo{MemoryRepo: sessions.NewMemoryRepo()}
	f := setupTestFixture(t, sessions.WithRepo(repo))
	ctx := context.Background()

	id, err := f.registry.LoginWithTimeout(ctx, creds(), time.Minute)
	require.NoError(t, err)
	f.clock.Advance(59 * time.Second)

	reaped := make(chan int, 1)
	repo.onUpsert = func() {
		// the old deadline passes while the refresh is being written
		f.clock.Advance(time.Second)
		go func() {
			removed, _ := f.registry.Reap(ctx)
			reaped <- removed
		}()
		time.Sleep(20 * time.Millisecond)
	}
	repo.armed.Store(true)

	require.NoError(t, f.registry.RefreshLoginSession(ctx, id))
	require.Equal(t, 0, <-reaped)

	_, err = f.registry.User(ctx, id)
	require.NoError(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	f := setupTestFixture(t, sessions.WithReaperPeriod(time.Millisecond))
	f.registry.Start()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.registry.Login(ctx, creds())
			require.NoError(t, err)
			_, err = f.registry.HasPermission(ctx, id, "commit")
			require.NoError(t, err)
			require.NoError(t, f.registry.RefreshLoginSession(ctx, id))
			require.NoError(t, f.registry.Logout(ctx, id))
		}()
	}
	wg.Wait()
	require.Equal(t, 0, f.repo.Len())
}

func TestNew_Validation(t *testing.T) {
	_, err := sessions.New(nil)
	require.ErrorIs(t, err, auth.ErrInvalidConfig)

	_, err = sessions.New(authfake.NewFakeProvider(), sessions.WithDefaultTimeout(-time.Second))
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}
