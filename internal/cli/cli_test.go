package cli_test

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/cli"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestHash(t *testing.T) {
	out, err := run(t, "hash", "--algorithm", "sha512", "--salt-style", "column", "--salt", "pepper", "sausages")
	require.NoError(t, err)

	sum := sha512.Sum512([]byte("peppersausages"))
	require.Contains(t, out, "salt: pepper\n")
	require.Contains(t, out, "hash: "+strings.ToUpper(hex.EncodeToString(sum[:]))+"\n")

	out, err = run(t, "hash", "--algorithm", "plaintext", "--salt-style", "no_salt", "sausages")
	require.NoError(t, err)
	require.Equal(t, "salt: \nhash: sausages\n", out)

	_, err = run(t, "hash", "--algorithm", "md5", "sausages")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestTokenGenerateAndVerify(t *testing.T) {
	t.Setenv("AUTHCTL_TOKEN_SECRET", "keyboard cat")

	raw, err := run(t, "token", "generate", "--sub", "tim", "--claim", "tenant=acme", "--claim", "level=3", "--expires-in", "5m")
	require.NoError(t, err)
	raw = strings.TrimSpace(raw)
	require.Len(t, strings.Split(raw, "."), 3)

	out, err := run(t, "token", "verify", raw)
	require.NoError(t, err)

	var claims map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	require.Equal(t, "tim", claims["sub"])
	require.Equal(t, "acme", claims["tenant"])
	require.Equal(t, float64(3), claims["level"])
	require.Equal(t, "authctl", claims["iss"])

	t.Setenv("AUTHCTL_TOKEN_SECRET", "other secret")
	_, err = run(t, "token", "verify", raw)
	require.ErrorIs(t, err, auth.ErrTokenVerification)

	_, err = run(t, "token", "generate", "--claim", "novalue")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestToken_NoSecret(t *testing.T) {
	_, err := run(t, "token", "generate", "--sub", "tim")
	require.Error(t, err)
	require.Contains(t, err.Error(), "token.secret")
}

func TestLogin(t *testing.T) {
	users := filepath.Join(t.TempDir(), "users.properties")
	require.NoError(t, os.WriteFile(users, []byte("user.tim=sausages,developer\nrole.developer=do_actual_work\n"), 0o600))

	out, err := run(t, "login", "--users", users, "--password", "sausages",
		"--check", "do_actual_work", "--check", "role:developer", "--check", "deploy", "tim")
	require.NoError(t, err)
	require.Contains(t, out, "principal: username=tim\n")
	require.Contains(t, out, "roles:     developer\n")
	require.Contains(t, out, "do_actual_work: true\n")
	require.Contains(t, out, "role:developer: true\n")
	require.Contains(t, out, "deploy: false\n")

	t.Setenv("AUTHCTL_PASSWORD", "chips")
	_, err = run(t, "login", "--users", users, "tim")
	require.ErrorIs(t, err, auth.ErrAuthentication)

	_, err = run(t, "login", "tim")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestAuthorizeURL(t *testing.T) {
	t.Setenv("AUTHCTL_OAUTH2_CLIENT_ID", "my-client")

	out, err := run(t, "oauth2", "authorize-url", "--provider", "google", "--state", "xyz", "--redirect-url", "https://app.example.com/cb")
	require.NoError(t, err)

	u, err := url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "accounts.google.com", u.Host)
	q := u.Query()
	require.Equal(t, "my-client", q.Get("client_id"))
	require.Equal(t, "xyz", q.Get("state"))
	require.Equal(t, "code", q.Get("response_type"))
	require.Equal(t, "openid profile email", q.Get("scope"))
	require.Equal(t, "https://app.example.com/cb", q.Get("redirect_uri"))

	out, err = run(t, "oauth2", "authorize-url", "--provider", "keycloak", "--site", "https://sso.example.com", "--realm", "staff")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "https://sso.example.com/realms/staff/protocol/openid-connect/auth?"))
	u, err = url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.NotEmpty(t, u.Query().Get("state"))

	_, err = run(t, "oauth2", "authorize-url", "--provider", "keycloak")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)

	_, err = run(t, "oauth2", "authorize-url", "--provider", "myspace")
	require.ErrorIs(t, err, auth.ErrInvalidConfig)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "authctl "+cli.Version)
}
