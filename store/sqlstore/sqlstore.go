// Package sqlstore is a credential store over database/sql. Query text is
// configuration; the defaults target PostgreSQL through lib/pq.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/store"
)

const (
	DefaultAuthenticateQuery = "SELECT password, password_salt FROM users WHERE username = $1"
	DefaultRolesQuery        = "SELECT role FROM user_roles WHERE username = $1"
	DefaultPermissionsQuery  = "SELECT rp.perm FROM roles_perms rp, user_roles ur WHERE ur.username = $1 AND ur.role = rp.role"
	DefaultInsertUserQuery   = "INSERT INTO users (username, password, password_salt) VALUES ($1, $2, $3)"
	DefaultInsertRoleQuery   = "INSERT INTO user_roles (username, role) VALUES ($1, $2)"
	DefaultGrantQuery        = "INSERT INTO roles_perms (role, perm) VALUES ($1, $2)"
)

// Schema creates the tables the default queries expect.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (username VARCHAR(255) PRIMARY KEY, password VARCHAR(255) NOT NULL, password_salt VARCHAR(255))`,
	`CREATE TABLE IF NOT EXISTS user_roles (username VARCHAR(255) NOT NULL, role VARCHAR(255) NOT NULL, PRIMARY KEY (username, role))`,
	`CREATE TABLE IF NOT EXISTS roles_perms (role VARCHAR(255) NOT NULL, perm VARCHAR(255) NOT NULL, PRIMARY KEY (role, perm))`,
}

// DB is the subset of *sql.DB the store uses.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Queries holds the statements run by the store. Each takes the principal
// id as its first parameter.
type Queries struct {
	Authenticate string
	Roles        string
	Permissions  string
	InsertUser   string
	InsertRole   string
	Grant        string
}

func DefaultQueries() Queries {
	return Queries{
		Authenticate: DefaultAuthenticateQuery,
		Roles:        DefaultRolesQuery,
		Permissions:  DefaultPermissionsQuery,
		InsertUser:   DefaultInsertUserQuery,
		InsertRole:   DefaultInsertRoleQuery,
		Grant:        DefaultGrantQuery,
	}
}

var _ store.CredentialStore = (*Store)(nil)

// Store reads credentials with SQL. Permissions are granted to roles, so
// FindCredentials leaves Roles and Permissions empty; they are loaded on
// demand through Roles and Permissions.
type Store struct {
	db      DB
	queries Queries
}

type StoreOption func(*Store)

// WithQueries replaces the default statements. Empty fields keep the default.
func WithQueries(q Queries) StoreOption {
	return func(s *Store) {
		d := DefaultQueries()
		s.queries = Queries{
			Authenticate: pick(q.Authenticate, d.Authenticate),
			Roles:        pick(q.Roles, d.Roles),
			Permissions:  pick(q.Permissions, d.Permissions),
			InsertUser:   pick(q.InsertUser, d.InsertUser),
			InsertRole:   pick(q.InsertRole, d.InsertRole),
			Grant:        pick(q.Grant, d.Grant),
		}
	}
}

func pick(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func New(db DB, options ...StoreOption) *Store {
	s := &Store{db: db, queries: DefaultQueries()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// ApplySchema executes the statements in order.
func ApplySchema(ctx context.Context, db DB, statements ...string) error {
	for _, stmt := range statements {
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("[sqlstore.ApplySchema] %w: %w", auth.ErrBackingStore, err)
		}
	}
	return nil
}

func (s *Store) FindCredentials(ctx context.Context, principalID string) (*store.Record, error) {
	rows, err := s.db.QueryContext(ctx, s.queries.Authenticate, principalID)
	if err != nil {
		return nil, fmt.Errorf("[sqlstore.FindCredentials] %w: %w", auth.ErrBackingStore, err)
	}
	defer rows.Close()

	var (
		record *store.Record
		count  int
	)
	for rows.Next() {
		count++
		var hash, salt sql.NullString
		if err := rows.Scan(&hash, &salt); err != nil {
			return nil, fmt.Errorf("[sqlstore.FindCredentials] scan: %w: %w", auth.ErrBackingStore, err)
		}
		record = &store.Record{PrincipalID: principalID, StoredHash: hash.String, Salt: salt.String}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("[sqlstore.FindCredentials] rows: %w: %w", auth.ErrBackingStore, err)
	}

	switch {
	case count == 0:
		return nil, store.ErrNotFound
	case count > 1:
		return nil, store.ErrAmbiguous
	}
	return record, nil
}

// InsertUser writes the user row and its roles in one transaction. Direct
// permissions are not part of the schema; grant them to a role with Grant.
func (s *Store) InsertUser(ctx context.Context, record store.Record) (err error) {
	if len(record.Permissions) > 0 {
		return fmt.Errorf("[sqlstore.InsertUser] permissions are granted through roles: %w", auth.ErrUnsupportedOperation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("[sqlstore.InsertUser] begin: %w: %w", auth.ErrBackingStore, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	salt := sql.NullString{String: record.Salt, Valid: record.Salt != ""}
	if _, err = tx.ExecContext(ctx, s.queries.InsertUser, record.PrincipalID, record.StoredHash, salt); err != nil {
		return fmt.Errorf("[sqlstore.InsertUser] user: %w: %w", auth.ErrBackingStore, err)
	}
	for _, role := range record.Roles {
		if _, err = tx.ExecContext(ctx, s.queries.InsertRole, record.PrincipalID, role); err != nil {
			return fmt.Errorf("[sqlstore.InsertUser] role %q: %w: %w", role, auth.ErrBackingStore, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("[sqlstore.InsertUser] commit: %w: %w", auth.ErrBackingStore, err)
	}
	return nil
}

// Grant gives permission to every holder of role.
func (s *Store) Grant(ctx context.Context, role, permission string) error {
	if _, err := s.db.ExecContext(ctx, s.queries.Grant, role, permission); err != nil {
		return fmt.Errorf("[sqlstore.Grant] %w: %w", auth.ErrBackingStore, err)
	}
	return nil
}

func (s *Store) Roles(ctx context.Context, principalID string) ([]string, error) {
	return s.column(ctx, "Roles", s.queries.Roles, principalID)
}

func (s *Store) Permissions(ctx context.Context, principalID string) ([]string, error) {
	return s.column(ctx, "Permissions", s.queries.Permissions, principalID)
}

func (s *Store) column(ctx context.Context, op, query, principalID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("[sqlstore.%s] %w: %w", op, auth.ErrBackingStore, err)
	}
	defer rows.Close()

	values := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("[sqlstore.%s] scan: %w: %w", op, auth.ErrBackingStore, err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("[sqlstore.%s] rows: %w: %w", op, auth.ErrBackingStore, err)
	}
	return values, nil
}
