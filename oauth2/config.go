package oauth2

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-core/internal/validation"
)

const (
	DefaultScopeSeparator = " "
	DefaultTimeout        = 30 * time.Second
)

// Config describes an authorization server and the client registered with
// it. Paths may be absolute URLs or relative to Site.
type Config struct {
	Flow         Flow   `mapstructure:"flow" validate:"required,oneof=AUTH_CODE CLIENT PASSWORD"`
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required_if=Flow CLIENT"`
	Site         string `mapstructure:"site" validate:"required,url"`

	AuthorizationPath string `mapstructure:"authorization_path" validate:"required_if=Flow AUTH_CODE"`
	TokenPath         string `mapstructure:"token_path" validate:"required"`
	IntrospectionPath string `mapstructure:"introspection_path"`
	RevocationPath    string `mapstructure:"revocation_path"`
	UserInfoPath      string `mapstructure:"user_info_path"`
	LogoutPath        string `mapstructure:"logout_path"`
	JWKSPath          string `mapstructure:"jwks_path"`

	// Issuer is checked against the iss claim of ID tokens. Defaults to Site.
	Issuer         string   `mapstructure:"issuer"`
	ScopeSeparator string   `mapstructure:"scope_separator"`
	RedirectURL    string   `mapstructure:"redirect_url"`
	Scopes         []string `mapstructure:"scopes"`

	// OIDC enables ID token verification and logout.
	OIDC bool `mapstructure:"oidc"`

	// RolesClaim is the dotted path to the roles list in the access token,
	// e.g. "realm_access.roles" for Keycloak.
	RolesClaim string `mapstructure:"roles_claim"`

	// Headers are sent with every request to the authorization server.
	Headers map[string]string `mapstructure:"headers"`
	Timeout time.Duration     `mapstructure:"timeout" validate:"gte=0"`
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return fmt.Errorf("[oauth2.Config.Validate] %w", err)
	}
	if c.ScopeSeparator == "" {
		c.ScopeSeparator = DefaultScopeSeparator
	}
	if c.Issuer == "" {
		c.Issuer = strings.TrimSuffix(c.Site, "/")
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Endpoint resolves a configured path against Site. Empty paths stay empty.
func (c Config) Endpoint(path string) string {
	if path == "" {
		return ""
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path
	}
	return strings.TrimSuffix(c.Site, "/") + "/" + strings.TrimPrefix(path, "/")
}
