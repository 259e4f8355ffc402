// Package properties reads principals from a properties file:
//
//	# comment
//	user.tim=sausages,morris_dancer,developer
//	role.developer=do_actual_work
//
// Passwords are stored as written, so the file pairs with a hashing
// strategy using the Plaintext algorithm unless the values are hashes.
package properties

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/store"
	"github.com/jrsteele09/go-auth-core/store/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	userPrefix = "user."
	rolePrefix = "role."
)

var _ store.CredentialStore = (*Store)(nil)

// Store is a read-only credential store loaded from a properties file.
type Store struct {
	records *memory.Store
	logger  zerolog.Logger
}

type Option func(*Store)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Load parses the file at path.
func Load(path string, options ...Option) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[properties.Load] %w: %w", auth.ErrBackingStore, err)
	}
	defer f.Close()
	return Parse(f, options...)
}

// Parse reads properties from r. Lines that are neither users nor roles
// are logged and skipped.
func Parse(r io.Reader, options ...Option) (*Store, error) {
	s := &Store{records: memory.New(), logger: log.Logger}
	for _, opt := range options {
		opt(s)
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			s.logger.Warn().Int("line", lineNo).Msg("properties: line without '=' ignored")
			continue
		}
		key = strings.TrimSpace(key)
		fields := splitList(value)

		switch {
		case strings.HasPrefix(key, userPrefix):
			name := strings.TrimPrefix(key, userPrefix)
			if name == "" || len(fields) == 0 {
				s.logger.Warn().Int("line", lineNo).Msg("properties: user entry without name or password ignored")
				continue
			}
			record := store.Record{PrincipalID: name, StoredHash: fields[0], Roles: fields[1:]}
			err := s.records.InsertUser(context.Background(), record)
			if errors.Is(err, store.ErrAmbiguous) {
				s.logger.Warn().Int("line", lineNo).Str("user", name).Msg("properties: duplicate user entry replaces the earlier one")
				if err = s.records.Delete(name); err == nil {
					err = s.records.InsertUser(context.Background(), record)
				}
			}
			if err != nil {
				return nil, fmt.Errorf("[properties.Parse] line %d: %w", lineNo, err)
			}
		case strings.HasPrefix(key, rolePrefix):
			name := strings.TrimPrefix(key, rolePrefix)
			if name == "" {
				s.logger.Warn().Int("line", lineNo).Msg("properties: role entry without name ignored")
				continue
			}
			s.records.SetRolePermissions(name, fields...)
		default:
			s.logger.Warn().Int("line", lineNo).Str("key", key).Msg("properties: unknown entry ignored")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("[properties.Parse] %w: %w", auth.ErrBackingStore, err)
	}
	return s, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) FindCredentials(ctx context.Context, principalID string) (*store.Record, error) {
	return s.records.FindCredentials(ctx, principalID)
}

func (s *Store) InsertUser(context.Context, store.Record) error {
	return fmt.Errorf("[properties.InsertUser] properties files are read-only: %w", auth.ErrUnsupportedOperation)
}

func (s *Store) Roles(ctx context.Context, principalID string) ([]string, error) {
	return s.records.Roles(ctx, principalID)
}

func (s *Store) Permissions(ctx context.Context, principalID string) ([]string, error) {
	return s.records.Permissions(ctx, principalID)
}
