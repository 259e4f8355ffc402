package oauth2

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-auth-core/auth"
)

// Google returns an OpenID Connect authorization code config for Google.
func Google(clientID, clientSecret string) Config {
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              "https://accounts.google.com",
		AuthorizationPath: "/o/oauth2/v2/auth",
		TokenPath:         "https://oauth2.googleapis.com/token",
		RevocationPath:    "https://oauth2.googleapis.com/revoke",
		UserInfoPath:      "https://openidconnect.googleapis.com/v1/userinfo",
		JWKSPath:          "https://www.googleapis.com/oauth2/v3/certs",
		Scopes:            []string{oidc.ScopeOpenID, "profile", "email"},
		OIDC:              true,
	}
}

// Facebook returns an authorization code config for the Graph API.
func Facebook(clientID, clientSecret string) Config {
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              "https://www.facebook.com",
		AuthorizationPath: "/dialog/oauth",
		TokenPath:         "https://graph.facebook.com/oauth/access_token",
		UserInfoPath:      "https://graph.facebook.com/me",
		ScopeSeparator:    ",",
	}
}

// AzureAD returns an OpenID Connect config for the given directory tenant.
func AzureAD(clientID, clientSecret, tenant string) Config {
	site := "https://login.microsoftonline.com/" + tenant
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              site,
		Issuer:            site + "/v2.0",
		AuthorizationPath: "/oauth2/v2.0/authorize",
		TokenPath:         "/oauth2/v2.0/token",
		LogoutPath:        "/oauth2/v2.0/logout",
		UserInfoPath:      "https://graph.microsoft.com/oidc/userinfo",
		JWKSPath:          "/discovery/v2.0/keys",
		Scopes:            []string{oidc.ScopeOpenID, "profile"},
		OIDC:              true,
	}
}

// Keycloak returns an OpenID Connect config for realm on a Keycloak server.
// Roles are read from realm_access.roles.
func Keycloak(site, realm, clientID, clientSecret string) Config {
	base := "/realms/" + realm + "/protocol/openid-connect"
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              strings.TrimSuffix(site, "/"),
		Issuer:            strings.TrimSuffix(site, "/") + "/realms/" + realm,
		AuthorizationPath: base + "/auth",
		TokenPath:         base + "/token",
		IntrospectionPath: base + "/token/introspect",
		RevocationPath:    base + "/revoke",
		UserInfoPath:      base + "/userinfo",
		LogoutPath:        base + "/logout",
		JWKSPath:          base + "/certs",
		Scopes:            []string{oidc.ScopeOpenID},
		RolesClaim:        "realm_access.roles",
		OIDC:              true,
	}
}

// AppNet returns an authorization code config for App.net.
func AppNet(clientID, clientSecret string) Config {
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              "https://account.app.net",
		AuthorizationPath: "/oauth/authenticate",
		TokenPath:         "/oauth/access_token",
		UserInfoPath:      "https://api.app.net/users/me",
	}
}

// CloudFoundryUAA returns a config for a UAA server at site.
func CloudFoundryUAA(site, clientID, clientSecret string) Config {
	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              strings.TrimSuffix(site, "/"),
		AuthorizationPath: "/oauth/authorize",
		TokenPath:         "/oauth/token",
		IntrospectionPath: "/introspect",
		RevocationPath:    "/oauth/token/revoke",
		UserInfoPath:      "/userinfo",
		LogoutPath:        "/logout.do",
		JWKSPath:          "/token_keys",
		ScopeSeparator:    " ",
	}
}

// discoveryDocument holds the metadata fields oidc.Provider does not expose.
type discoveryDocument struct {
	Issuer        string `json:"issuer"`
	Authorization string `json:"authorization_endpoint"`
	Token         string `json:"token_endpoint"`
	Introspection string `json:"introspection_endpoint"`
	Revocation    string `json:"revocation_endpoint"`
	UserInfo      string `json:"userinfo_endpoint"`
	EndSession    string `json:"end_session_endpoint"`
	JWKS          string `json:"jwks_uri"`
}

// Discover builds an OpenID Connect config from the issuer's discovery
// document. Use oidc.ClientContext to supply an HTTP client.
func Discover(ctx context.Context, issuer, clientID, clientSecret string) (Config, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return Config{}, fmt.Errorf("[oauth2.Discover] %w: %w", auth.ErrInvalidConfig, err)
	}

	var doc discoveryDocument
	if err := provider.Claims(&doc); err != nil {
		return Config{}, fmt.Errorf("[oauth2.Discover] %w: %w", auth.ErrInvalidConfig, err)
	}

	return Config{
		Flow:              FlowAuthCode,
		ClientID:          clientID,
		ClientSecret:      clientSecret,
		Site:              doc.Issuer,
		Issuer:            doc.Issuer,
		AuthorizationPath: doc.Authorization,
		TokenPath:         doc.Token,
		IntrospectionPath: doc.Introspection,
		RevocationPath:    doc.Revocation,
		UserInfoPath:      doc.UserInfo,
		LogoutPath:        doc.EndSession,
		JWKSPath:          doc.JWKS,
		Scopes:            []string{oidc.ScopeOpenID},
		OIDC:              true,
	}, nil
}
