// Package hashing provides pluggable password hashing decoupled from storage.
package hashing

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-core/auth"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// SaltStyle selects where the salt for a password comes from.
type SaltStyle string

const (
	NoSalt   SaltStyle = "NO_SALT"
	Column   SaltStyle = "COLUMN"
	External SaltStyle = "EXTERNAL"
)

type Algorithm string

const (
	SHA512   Algorithm = "SHA512"
	PBKDF2   Algorithm = "PBKDF2"
	Argon2id Algorithm = "ARGON2ID"
	// Bcrypt embeds its own salt, so it is only valid with NoSalt and its
	// ComputeHash output differs between calls. Use Verify to compare.
	Bcrypt Algorithm = "BCRYPT"
	// Plaintext stores the password unchanged. Only valid with NoSalt; used
	// by realms whose files hold clear passwords.
	Plaintext Algorithm = "PLAINTEXT"
)

const (
	DefaultPBKDF2Iterations = 10000
	DefaultKeyLength        = 64
	DefaultArgon2Time       = 1
	DefaultArgon2Memory     = 64 * 1024
	DefaultArgon2Threads    = 4
	DefaultBcryptCost       = 12
	saltBytes               = 32
)

// Salted is anything that carries a stored salt, normally a credential
// record loaded from a backing store.
type Salted interface {
	GetSalt() string
	GetStoredHash() string
}

// Config describes a strategy. Zero values take the defaults above and
// SaltStyle defaults to Column.
type Config struct {
	Algorithm    Algorithm `mapstructure:"algorithm"`
	SaltStyle    SaltStyle `mapstructure:"salt_style"`
	ExternalSalt string    `mapstructure:"external_salt"`
	Iterations   int       `mapstructure:"iterations"`
	KeyLength    int       `mapstructure:"key_length"`
	BcryptCost   int       `mapstructure:"bcrypt_cost"`
}

// Strategy hashes and verifies passwords. Setters are meant to be called
// before the strategy is shared between goroutines.
type Strategy struct {
	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config) (*Strategy, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = SHA512
	}
	if cfg.SaltStyle == "" {
		cfg.SaltStyle = Column
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultPBKDF2Iterations
	}
	if cfg.KeyLength <= 0 {
		cfg.KeyLength = DefaultKeyLength
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &Strategy{cfg: cfg}, nil
}

// MustNew is New for static configuration.
func MustNew(cfg Config) *Strategy {
	s, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return s
}

func validate(cfg Config) error {
	switch cfg.Algorithm {
	case SHA512, PBKDF2, Argon2id:
	case Plaintext:
		if cfg.SaltStyle != NoSalt {
			return fmt.Errorf("[hashing.New] %s cannot be salted, salt style must be %s: %w", Plaintext, NoSalt, auth.ErrInvalidConfig)
		}
	case Bcrypt:
		if cfg.SaltStyle != NoSalt {
			return fmt.Errorf("[hashing.New] %s manages its own salt, salt style must be %s: %w", Bcrypt, NoSalt, auth.ErrInvalidConfig)
		}
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return fmt.Errorf("[hashing.New] bcrypt cost %d out of range: %w", cfg.BcryptCost, auth.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("[hashing.New] unsupported algorithm %q: %w", cfg.Algorithm, auth.ErrInvalidConfig)
	}

	switch cfg.SaltStyle {
	case NoSalt, Column:
	case External:
		if cfg.ExternalSalt == "" {
			return fmt.Errorf("[hashing.New] salt style %s requires an external salt: %w", External, auth.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("[hashing.New] unsupported salt style %q: %w", cfg.SaltStyle, auth.ErrInvalidConfig)
	}
	return nil
}

func (s *Strategy) Algorithm() Algorithm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Algorithm
}

func (s *Strategy) SaltStyle() SaltStyle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.SaltStyle
}

// SetSaltStyle changes the salt style. Changing it while authentications
// are running is not supported.
func (s *Strategy) SetSaltStyle(style SaltStyle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	next.SaltStyle = style
	if err := validate(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// SetExternalSalt sets the strategy wide salt used by the External style.
func (s *Strategy) SetExternalSalt(salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.cfg
	next.ExternalSalt = salt
	if err := validate(next); err != nil {
		return err
	}
	s.cfg = next
	return nil
}

// GetSalt returns the salt to use for a user. ok is false for NoSalt.
func (s *Strategy) GetSalt(user Salted) (salt string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.salt(user)
}

func (s *Strategy) salt(user Salted) (string, bool) {
	switch s.cfg.SaltStyle {
	case External:
		return s.cfg.ExternalSalt, true
	case Column:
		if user == nil {
			return "", true
		}
		return user.GetSalt(), true
	default:
		return "", false
	}
}

// ComputeHash hashes password with the salt that GetSalt returns for user.
// An empty password is hashed like any other value.
func (s *Strategy) ComputeHash(password string, user Salted) (string, error) {
	s.mu.RLock()
	cfg := s.cfg
	salt, _ := s.salt(user)
	s.mu.RUnlock()

	return computeHash(cfg, password, salt)
}

func computeHash(cfg Config, password, salt string) (string, error) {
	switch cfg.Algorithm {
	case SHA512:
		sum := sha512.Sum512([]byte(salt + password))
		return strings.ToUpper(hex.EncodeToString(sum[:])), nil
	case PBKDF2:
		key := pbkdf2.Key([]byte(password), []byte(salt), cfg.Iterations, cfg.KeyLength, sha512.New)
		return strings.ToUpper(hex.EncodeToString(key)), nil
	case Argon2id:
		key := argon2.IDKey([]byte(password), []byte(salt), DefaultArgon2Time, DefaultArgon2Memory, DefaultArgon2Threads, uint32(cfg.KeyLength))
		return strings.ToUpper(hex.EncodeToString(key)), nil
	case Plaintext:
		return password, nil
	case Bcrypt:
		h, err := bcrypt.GenerateFromPassword(bcryptInput(password), cfg.BcryptCost)
		if err != nil {
			return "", fmt.Errorf("[hashing.ComputeHash] bcrypt: %w", err)
		}
		return string(h), nil
	default:
		return "", fmt.Errorf("[hashing.ComputeHash] unsupported algorithm %q: %w", cfg.Algorithm, auth.ErrInvalidConfig)
	}
}

// Verify reports whether password hashes to the user's stored hash.
func (s *Strategy) Verify(password string, user Salted) bool {
	if user == nil {
		return false
	}
	stored := user.GetStoredHash()
	if stored == "" {
		return false
	}

	s.mu.RLock()
	cfg := s.cfg
	salt, _ := s.salt(user)
	s.mu.RUnlock()

	if cfg.Algorithm == Bcrypt {
		return bcrypt.CompareHashAndPassword([]byte(stored), bcryptInput(password)) == nil
	}

	computed, err := computeHash(cfg, password, salt)
	if err != nil {
		return false
	}
	if cfg.Algorithm != Plaintext {
		stored = strings.ToUpper(stored)
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(computed)) == 1
}

// bcryptMaxInput is the longest password bcrypt accepts.
const bcryptMaxInput = 72

// bcryptInput passes short passwords through and replaces longer ones by
// the base64 SHA-384 digest, which fits the bcrypt limit.
func bcryptInput(password string) []byte {
	if len(password) <= bcryptMaxInput {
		return []byte(password)
	}
	sum := sha512.Sum384([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// GenerateSalt returns 32 random bytes as uppercase hex.
func GenerateSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("[hashing.GenerateSalt] %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// Plain is a Salted value built from literals.
type Plain struct {
	Salt string
	Hash string
}

func (p Plain) GetSalt() string       { return p.Salt }
func (p Plain) GetStoredHash() string { return p.Hash }
