package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/sqlstore"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	db    *sql.DB
	mock  sqlmock.Sqlmock
	store *sqlstore.Store
}

func setupTestFixture(t *testing.T, options ...sqlstore.StoreOption) *testFixture {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	return &testFixture{db: db, mock: mock, store: sqlstore.New(db, options...)}
}

func TestFindCredentials(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectQuery(sqlstore.DefaultAuthenticateQuery).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"password", "password_salt"}).AddRow("HASH", "SALT"))

	r, err := f.store.FindCredentials(context.Background(), "tim")
	require.NoError(t, err)
	require.Equal(t, &store.Record{PrincipalID: "tim", StoredHash: "HASH", Salt: "SALT"}, r)
}

func TestFindCredentials_NullSalt(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectQuery(sqlstore.DefaultAuthenticateQuery).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"password", "password_salt"}).AddRow("HASH", nil))

	r, err := f.store.FindCredentials(context.Background(), "tim")
	require.NoError(t, err)
	require.Empty(t, r.Salt)
}

func TestFindCredentials_NotFoundAndAmbiguous(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectQuery(sqlstore.DefaultAuthenticateQuery).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"password", "password_salt"}))
	f.mock.ExpectQuery(sqlstore.DefaultAuthenticateQuery).
		WithArgs("twins").
		WillReturnRows(sqlmock.NewRows([]string{"password", "password_salt"}).AddRow("A", "1").AddRow("B", "2"))

	_, err := f.store.FindCredentials(context.Background(), "nobody")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.store.FindCredentials(context.Background(), "twins")
	require.ErrorIs(t, err, store.ErrAmbiguous)
}

func TestFindCredentials_BackingStoreError(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectQuery(sqlstore.DefaultAuthenticateQuery).
		WithArgs("tim").
		WillReturnError(errors.New("connection refused"))

	_, err := f.store.FindCredentials(context.Background(), "tim")
	require.ErrorIs(t, err, auth.ErrBackingStore)
	require.Contains(t, err.Error(), "connection refused")
}

func TestRolesAndPermissions(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectQuery(sqlstore.DefaultRolesQuery).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("dev").AddRow("admin"))
	f.mock.ExpectQuery(sqlstore.DefaultPermissionsQuery).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"perm"}).AddRow("commit"))

	roles, err := f.store.Roles(context.Background(), "tim")
	require.NoError(t, err)
	require.Equal(t, []string{"dev", "admin"}, roles)

	perms, err := f.store.Permissions(context.Background(), "tim")
	require.NoError(t, err)
	require.Equal(t, []string{"commit"}, perms)
}

func TestCustomQueries(t *testing.T) {
	const q = "SELECT pwd, salt FROM accounts WHERE login = $1"
	f := setupTestFixture(t, sqlstore.WithQueries(sqlstore.Queries{Authenticate: q}))
	f.mock.ExpectQuery(q).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"pwd", "salt"}).AddRow("H", "S"))
	f.mock.ExpectQuery(sqlstore.DefaultRolesQuery).
		WithArgs("tim").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	_, err := f.store.FindCredentials(context.Background(), "tim")
	require.NoError(t, err)
	roles, err := f.store.Roles(context.Background(), "tim")
	require.NoError(t, err)
	require.Empty(t, roles)
}

func TestInsertUser(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(sqlstore.DefaultInsertUserQuery).WithArgs("tim", "HASH", "SALT").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(sqlstore.DefaultInsertRoleQuery).WithArgs("tim", "dev").WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectCommit()

	err := f.store.InsertUser(context.Background(), store.Record{PrincipalID: "tim", StoredHash: "HASH", Salt: "SALT", Roles: []string{"dev"}})
	require.NoError(t, err)
}

func TestInsertUser_RollsBack(t *testing.T) {
	f := setupTestFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectExec(sqlstore.DefaultInsertUserQuery).WithArgs("tim", "HASH", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec(sqlstore.DefaultInsertRoleQuery).WithArgs("tim", "dev").WillReturnError(errors.New("duplicate key"))
	f.mock.ExpectRollback()

	err := f.store.InsertUser(context.Background(), store.Record{PrincipalID: "tim", StoredHash: "HASH", Roles: []string{"dev"}})
	require.ErrorIs(t, err, auth.ErrBackingStore)

	err = f.store.InsertUser(context.Background(), store.Record{PrincipalID: "tim", Permissions: []string{"x"}})
	require.ErrorIs(t, err, auth.ErrUnsupportedOperation)
}

func TestGrantAndSchema(t *testing.T) {
	f := setupTestFixture(t)
	for _, stmt := range sqlstore.Schema {
		f.mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	f.mock.ExpectExec(sqlstore.DefaultGrantQuery).WithArgs("dev", "commit").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, sqlstore.ApplySchema(context.Background(), f.db, sqlstore.Schema...))
	require.NoError(t, f.store.Grant(context.Background(), "dev", "commit"))
}

func TestOpen(t *testing.T) {
	_, err := sqlstore.Open()
	require.ErrorIs(t, err, sqlstore.ErrMissingDSN)

	mockDB, _, err := sqlmock.NewWithDSN("sqlstore_open_test")
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := sqlstore.Open(sqlstore.WithDriver("sqlmock"), sqlstore.WithDSN("sqlstore_open_test"), sqlstore.WithMaxOpenConns(2))
	require.NoError(t, err)
	_ = db.Close()
}
