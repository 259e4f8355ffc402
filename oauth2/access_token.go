package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/utils"
	"github.com/jrsteele09/go-auth-core/token"
)

// AccessToken is a user authenticated by an authorization server. The
// principal holds the token response plus the decoded access token and ID
// token claims.
type AccessToken struct {
	*auth.BaseUser
	client *Client

	mu      sync.Mutex
	revoked map[TokenType]bool
}

func newAccessToken(c *Client, principal map[string]any) (*AccessToken, error) {
	decorate(principal)
	t := &AccessToken{client: c, revoked: make(map[TokenType]bool)}
	t.BaseUser = auth.NewBaseUser(Kind, principal, t)
	if err := t.SetAuthProvider(c); err != nil {
		return nil, err
	}
	return t, nil
}

// decorate adds the unverified access token claims and the subject.
func decorate(principal map[string]any) {
	raw, _ := principal[KeyAccessToken].(string)
	if claims, err := token.Decode(raw); err == nil {
		principal[KeyClaims] = map[string]any(claims)
	}
	for _, key := range []string{KeyClaims, KeyIDTokenClaims} {
		claims, _ := principal[key].(map[string]any)
		if sub, _ := claims["sub"].(string); sub != "" {
			principal[KeySubject] = sub
			return
		}
	}
}

func (t *AccessToken) RawToken() string {
	raw, _ := t.Principal()[KeyAccessToken].(string)
	return raw
}

func (t *AccessToken) RefreshToken() string {
	raw, _ := t.Principal()[KeyRefreshToken].(string)
	return raw
}

func (t *AccessToken) IDToken() string {
	raw, _ := t.Principal()[KeyIDToken].(string)
	return raw
}

func (t *AccessToken) Subject() string {
	sub, _ := t.Principal()[KeySubject].(string)
	return sub
}

// Scopes returns the granted scopes.
func (t *AccessToken) Scopes() []string {
	return utils.Strings(t.Principal()[KeyScope], t.client.cfg.ScopeSeparator)
}

func (t *AccessToken) State() TokenState {
	t.mu.Lock()
	revoked := t.revoked[AccessTokenType]
	t.mu.Unlock()
	switch {
	case revoked:
		return StateRevoked
	case t.Expired():
		return StateExpired
	default:
		return StateValid
	}
}

// Expired reports whether the access token's exp claim, or expires_at for
// opaque tokens, has passed. Tokens without either never expire locally.
func (t *AccessToken) Expired() bool {
	principal := t.Principal()
	now := t.client.nowFunc()

	if claims, ok := principal[KeyClaims].(map[string]any); ok {
		if exp, err := jwt.MapClaims(claims).GetExpirationTime(); err == nil && exp != nil {
			return !now.Before(exp.Time)
		}
	}
	if exp, ok := toInt64(principal[KeyExpiresAt]); ok {
		return now.Unix() >= exp
	}
	return false
}

// Refresh exchanges the refresh token for a new access token. The role and
// permission cache is cleared.
func (t *AccessToken) Refresh(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.revoked[AccessTokenType] || t.revoked[RefreshTokenType] {
		return fmt.Errorf("[AccessToken.Refresh] token was revoked: %w", auth.ErrRefresh)
	}
	refreshToken := t.RefreshToken()
	if refreshToken == "" {
		return fmt.Errorf("[AccessToken.Refresh] no refresh token: %w", auth.ErrRefresh)
	}

	principal, err := t.client.refresh(ctx, refreshToken)
	if err != nil {
		t.client.logger.Debug().Err(err).Str("sub", t.Subject()).Msg("oauth2: refresh failed")
		return fmt.Errorf("[AccessToken.Refresh] %w", err)
	}
	decorate(principal)

	if previous := t.Subject(); previous != "" {
		if sub, _ := principal[KeySubject].(string); sub != "" && sub != previous {
			return fmt.Errorf("[AccessToken.Refresh] subject changed from %q to %q: %w", previous, sub, auth.ErrRefresh)
		}
		principal[KeySubject] = previous
	}

	t.Reset(principal)
	t.client.logger.Debug().Str("sub", t.Subject()).Msg("oauth2: token refreshed")
	return nil
}

// Revoke revokes the access or refresh token at the server. Revoking a
// token twice only calls the server once.
func (t *AccessToken) Revoke(ctx context.Context, tokenType TokenType) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tokenType == "" {
		tokenType = AccessTokenType
	}
	if t.revoked[tokenType] {
		return nil
	}

	principal := t.Principal()
	raw, _ := principal[string(tokenType)].(string)
	if raw == "" {
		return fmt.Errorf("[AccessToken.Revoke] no %s to revoke: %w", tokenType, auth.ErrUnsupportedOperation)
	}
	if err := t.client.revoke(ctx, raw, tokenType); err != nil {
		return fmt.Errorf("[AccessToken.Revoke] %w", err)
	}

	t.revoked[tokenType] = true
	t.ClearCache()
	return nil
}

// Logout ends the OpenID Connect session. Plain OAuth2 configs return
// auth.ErrUnsupportedOperation.
func (t *AccessToken) Logout(ctx context.Context) error {
	cfg := t.client.cfg
	if !cfg.OIDC || cfg.LogoutPath == "" {
		return fmt.Errorf("[AccessToken.Logout] logout requires OpenID Connect: %w", auth.ErrUnsupportedOperation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.revoked[AccessTokenType] {
		return nil
	}
	if err := t.client.logout(ctx, t.RawToken(), t.RefreshToken()); err != nil {
		return fmt.Errorf("[AccessToken.Logout] %w", err)
	}

	t.revoked[AccessTokenType] = true
	t.revoked[RefreshTokenType] = true
	t.ClearCache()
	return nil
}

// Introspect refreshes scope and expiry from the introspection endpoint.
// Inactive tokens return auth.ErrTokenExpired.
func (t *AccessToken) Introspect(ctx context.Context) (*Introspection, error) {
	info, err := t.client.IntrospectToken(ctx, t.RawToken(), AccessTokenType)
	if err != nil {
		return nil, fmt.Errorf("[AccessToken.Introspect] %w", err)
	}
	if !info.Active {
		return nil, fmt.Errorf("[AccessToken.Introspect] token is not active: %w", auth.ErrTokenExpired)
	}

	principal := t.Principal()
	if info.Scope != "" {
		principal[KeyScope] = info.Scope
	}
	if info.Exp > 0 {
		principal[KeyExpiresAt] = info.Exp
	}
	if info.Sub != "" && principal[KeySubject] == nil {
		principal[KeySubject] = info.Sub
	}
	t.Reset(principal)
	return info, nil
}

// UserInfo fetches the userinfo claims for this token.
func (t *AccessToken) UserInfo(ctx context.Context) (map[string]any, error) {
	return t.client.UserInfo(ctx, t)
}

// verifyIDToken checks an id_token in principal and stores its claims.
func (c *Client) verifyIDToken(ctx context.Context, principal map[string]any, nonce string) error {
	raw, _ := principal[KeyIDToken].(string)
	if raw == "" || !c.cfg.OIDC {
		return nil
	}

	idToken, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		c.logger.Debug().Err(err).Msg("oauth2: id token rejected")
		return oidcVerificationError(err)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return &auth.VerificationError{Reason: auth.VerificationMalformed, Cause: errors.New("id token nonce mismatch")}
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return &auth.VerificationError{Reason: auth.VerificationMalformed, Cause: err}
	}
	principal[KeyIDTokenClaims] = claims
	return nil
}

func oidcVerificationError(err error) *auth.VerificationError {
	var expired *oidc.TokenExpiredError
	msg := err.Error()
	reason := auth.VerificationBadSignature
	switch {
	case errors.As(err, &expired):
		reason = auth.VerificationExpired
	case strings.Contains(msg, "malformed"):
		reason = auth.VerificationMalformed
	case strings.Contains(msg, "issued by a different provider"):
		reason = auth.VerificationIssuerMismatch
	case strings.Contains(msg, "expected audience"):
		reason = auth.VerificationAudienceMismatch
	case strings.Contains(msg, "unexpected signature algorithm"):
		reason = auth.VerificationUnsupportedAlgorithm
	}
	return &auth.VerificationError{Reason: reason, Cause: err}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
