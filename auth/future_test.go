package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/auth/authfake"
	"github.com/stretchr/testify/require"
)

func TestFuture_AuthenticateAsync(t *testing.T) {
	p := authfake.NewFakeProvider()
	p.AddUser(testUsername, testPassword, nil, nil)

	f := auth.AuthenticateAsync(context.Background(), p, auth.Credentials{"username": testUsername, "password": testPassword})
	user, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, testUsername, user.Principal()["username"])

	f = auth.AuthenticateAsync(context.Background(), p, auth.Credentials{"username": testUsername, "password": "wrong"})
	_, err = f.Await(context.Background())
	require.ErrorIs(t, err, auth.ErrAuthentication)
}

func TestFuture_AbandonedAwait(t *testing.T) {
	release := make(chan struct{})
	f := auth.Async(context.Background(), func(context.Context) (int, error) {
		<-release
		return 42, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestFuture_OnComplete(t *testing.T) {
	f := auth.Async(context.Background(), func(context.Context) (string, error) {
		return "", errors.New("nope")
	})

	got := make(chan error, 1)
	f.OnComplete(func(_ string, err error) { got <- err })

	select {
	case err := <-got:
		require.EqualError(t, err, "nope")
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}
