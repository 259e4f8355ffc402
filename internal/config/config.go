// Package config loads authctl settings from an optional YAML file, a .env
// file and AUTHCTL_ environment variables, in rising order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-core/hashing"
	"github.com/jrsteele09/go-auth-core/internal/validation"
	"github.com/jrsteele09/go-auth-core/oauth2"
	"github.com/jrsteele09/go-auth-core/token"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string         `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Hash     hashing.Config `mapstructure:"hash"`
	Token    TokenConfig    `mapstructure:"token"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Store    StoreConfig    `mapstructure:"store"`

	// OAuth2 is validated by oauth2.New when a command needs it.
	OAuth2 oauth2.Config `mapstructure:"oauth2" validate:"-"`
}

type TokenConfig struct {
	token.Config `mapstructure:",squash"`
	Secret       string `mapstructure:"secret"`
	Algorithm    string `mapstructure:"algorithm" validate:"oneof=HS256 HS384 HS512"`
}

type SessionsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	ReaperPeriod time.Duration `mapstructure:"reaper_period" validate:"gt=0"`
}

type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	UsersFile string `mapstructure:"users_file"`
}

var defaults = map[string]any{
	"log_level":               "info",
	"hash.algorithm":          string(hashing.SHA512),
	"hash.salt_style":         string(hashing.Column),
	"hash.external_salt":      "",
	"hash.iterations":         hashing.DefaultPBKDF2Iterations,
	"hash.key_length":         hashing.DefaultKeyLength,
	"hash.bcrypt_cost":        hashing.DefaultBcryptCost,
	"token.issuer":            "authctl",
	"token.audience":          []string{},
	"token.leeway":            time.Duration(0),
	"token.permissions_claim": token.DefaultPermissionsClaim,
	"token.roles_claim":       token.DefaultRolesClaim,
	"token.default_expiry":    time.Hour,
	"token.secret":            "",
	"token.algorithm":         "HS256",
	"sessions.timeout":        30 * time.Minute,
	"sessions.reaper_period":  time.Minute,
	"store.driver":            "postgres",
	"store.dsn":               "",
	"store.users_file":        "",
	"oauth2.flow":             string(oauth2.FlowAuthCode),
	"oauth2.client_id":        "",
	"oauth2.client_secret":    "",
	"oauth2.site":             "",
	"oauth2.redirect_url":     "",
	"oauth2.scopes":           []string{},
}

type LoaderConfig struct {
	ConfigFile string
	EnvFile    string
}

type LoaderOption func(*LoaderConfig)

// WithConfigFile sets a YAML file. A missing explicit file is an error.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets the .env file, ".env" by default. A missing file is
// skipped.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

func Load(opts ...LoaderOption) (*Config, error) {
	lc := LoaderConfig{EnvFile: ".env"}
	for _, opt := range opts {
		opt(&lc)
	}

	if lc.EnvFile != "" {
		// existing environment variables win over the file
		if err := godotenv.Load(lc.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("[config.Load] env file %s: %w", lc.EnvFile, err)
		}
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("[config.Load] config file %s: %w", lc.ConfigFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("[config.Load] %w", err)
	}
	if err := validation.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("[config.Load] %w", err)
	}
	return &cfg, nil
}
