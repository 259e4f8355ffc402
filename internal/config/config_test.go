package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/hashing"
	"github.com/jrsteele09/go-auth-core/internal/config"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.WithEnvFile(""))
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, hashing.SHA512, cfg.Hash.Algorithm)
	require.Equal(t, hashing.Column, cfg.Hash.SaltStyle)
	require.Equal(t, "authctl", cfg.Token.Issuer)
	require.Equal(t, time.Hour, cfg.Token.DefaultExpiry)
	require.Equal(t, "HS256", cfg.Token.Algorithm)
	require.Equal(t, 30*time.Minute, cfg.Sessions.Timeout)
	require.Equal(t, oauth2.FlowAuthCode, cfg.OAuth2.Flow)
}

func TestLoad_FileAndEnv(t *testing.T) {
	file := writeFile(t, "authctl.yaml", `
log_level: debug
hash:
  algorithm: PBKDF2
  iterations: 2000
token:
  issuer: https://issuer.example.com
  default_expiry: 15m
oauth2:
  client_id: from-file
  scopes: [openid, email]
`)
	envFile := writeFile(t, ".env", "AUTHCTL_TOKEN_SECRET=from-dotenv\nAUTHCTL_SESSIONS_TIMEOUT=5m\n")
	t.Setenv("AUTHCTL_TOKEN_ISSUER", "https://env.example.com")
	t.Setenv("AUTHCTL_OAUTH2_CLIENT_ID", "from-env")

	cfg, err := config.Load(config.WithConfigFile(file), config.WithEnvFile(envFile))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = os.Unsetenv("AUTHCTL_TOKEN_SECRET")
		_ = os.Unsetenv("AUTHCTL_SESSIONS_TIMEOUT")
	})

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, hashing.PBKDF2, cfg.Hash.Algorithm)
	require.Equal(t, 2000, cfg.Hash.Iterations)
	require.Equal(t, "https://env.example.com", cfg.Token.Issuer)
	require.Equal(t, 15*time.Minute, cfg.Token.DefaultExpiry)
	require.Equal(t, "from-dotenv", cfg.Token.Secret)
	require.Equal(t, 5*time.Minute, cfg.Sessions.Timeout)
	require.Equal(t, "from-env", cfg.OAuth2.ClientID)
	require.Equal(t, []string{"openid", "email"}, cfg.OAuth2.Scopes)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("AUTHCTL_LOG_LEVEL", "loud")
	_, err := config.Load(config.WithEnvFile(""))
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
	require.Contains(t, err.Error(), "log_level")

	_, err = config.Load(config.WithEnvFile(""), config.WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("AUTHCTL_TEST_VALUE", "set")
	require.Equal(t, "set", config.GetEnv("AUTHCTL_TEST_VALUE", "default"))
	require.Equal(t, "default", config.GetEnv("AUTHCTL_TEST_MISSING", "default"))
	require.Equal(t, "AUTHCTL_TOKEN_SECRET", config.EnvName("token.secret"))
}
