package auth_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/stretchr/testify/require"
)

func TestAuthenticationError_EnumerationSafe(t *testing.T) {
	unknown := auth.NewAuthenticationError(auth.ReasonUnknownPrincipal, nil, false)
	wrong := auth.NewAuthenticationError(auth.ReasonWrongPassword, nil, false)

	require.Equal(t, unknown.Error(), wrong.Error())
	require.ErrorIs(t, unknown, auth.ErrAuthentication)

	detailedUnknown := auth.NewAuthenticationError(auth.ReasonUnknownPrincipal, nil, true)
	detailedWrong := auth.NewAuthenticationError(auth.ReasonWrongPassword, nil, true)
	require.NotEqual(t, detailedUnknown.Error(), detailedWrong.Error())
}

func TestAuthenticationError_BackingStoreMatchable(t *testing.T) {
	err := auth.NewAuthenticationError(auth.ReasonBackingStore, fmt.Errorf("query: %w", auth.ErrBackingStore), false)

	require.ErrorIs(t, err, auth.ErrAuthentication)
	require.ErrorIs(t, err, auth.ErrBackingStore)
	require.NotContains(t, err.Error(), "query")
}

func TestVerificationError(t *testing.T) {
	var err error = &auth.VerificationError{Reason: auth.VerificationExpired}
	wrapped := fmt.Errorf("authenticate: %w", err)

	require.ErrorIs(t, wrapped, auth.ErrTokenVerification)
	require.ErrorIs(t, wrapped, auth.ErrAuthentication)

	var verr *auth.VerificationError
	require.True(t, errors.As(wrapped, &verr))
	require.Equal(t, auth.VerificationExpired, verr.Reason)
}

func TestExchangeError(t *testing.T) {
	err := &auth.ExchangeError{StatusCode: 400, ErrorCode: "invalid_grant", Description: "bad code", Payload: map[string]any{"error": "invalid_grant"}}

	require.ErrorIs(t, err, auth.ErrTokenExchange)
	require.Contains(t, err.Error(), "invalid_grant")
}

func TestCredentials(t *testing.T) {
	c := auth.Credentials{"username": "tim", "empty": "", "n": 3}

	v, ok := c.String("username")
	require.True(t, ok)
	require.Equal(t, "tim", v)

	_, ok = c.String("empty")
	require.False(t, ok)
	_, ok = c.String("n")
	require.False(t, ok)

	_, err := c.Require("password")
	require.ErrorIs(t, err, auth.ErrAuthentication)
	require.Contains(t, err.Error(), "password")
}
