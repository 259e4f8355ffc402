package properties_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/properties"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testFile = `
# users
user.tim = sausages,morris_dancer,developer,vampire
user.paulo=secret,administrator
user.lazy=
bogus.line=1
no equals here

role.developer=do_actual_work
role.vampire=drink_blood
role.administrator=*
`

func TestParse(t *testing.T) {
	var logs bytes.Buffer
	s, err := properties.Parse(strings.NewReader(testFile), properties.WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)
	ctx := context.Background()

	r, err := s.FindCredentials(ctx, "tim")
	require.NoError(t, err)
	require.Equal(t, "sausages", r.StoredHash)
	require.Equal(t, []string{"morris_dancer", "developer", "vampire"}, r.Roles)

	perms, err := s.Permissions(ctx, "tim")
	require.NoError(t, err)
	require.Equal(t, []string{"do_actual_work", "drink_blood"}, perms)

	roles, err := s.Roles(ctx, "paulo")
	require.NoError(t, err)
	require.Equal(t, []string{"administrator"}, roles)

	_, err = s.FindCredentials(ctx, "lazy")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.Contains(t, logs.String(), "unknown entry ignored")
	require.Contains(t, logs.String(), "without '='")
	require.NotContains(t, logs.String(), "sausages")
}

func TestParse_DuplicateUser(t *testing.T) {
	var logs bytes.Buffer
	s, err := properties.Parse(strings.NewReader("user.a=1,first\nuser.a=2,second\n"), properties.WithLogger(zerolog.New(&logs)))
	require.NoError(t, err)

	r, err := s.FindCredentials(context.Background(), "a")
	require.NoError(t, err)
	require.Equal(t, "2", r.StoredHash)
	require.Equal(t, []string{"second"}, r.Roles)
	require.Contains(t, logs.String(), "duplicate user entry")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.properties")
	require.NoError(t, os.WriteFile(path, []byte(testFile), 0o600))

	s, err := properties.Load(path, properties.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.ErrorIs(t, s.InsertUser(context.Background(), store.Record{PrincipalID: "x"}), auth.ErrUnsupportedOperation)

	_, err = properties.Load(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, auth.ErrBackingStore)
}
