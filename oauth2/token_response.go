package oauth2

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-core/auth"
	"golang.org/x/oauth2"
)

// Principal keys of an AccessToken.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyIDToken       = "id_token"
	KeyTokenType     = "token_type"
	KeyScope         = "scope"
	KeyExpiresAt     = "expires_at"
	KeySubject       = "sub"
	KeyClaims        = "access_token_claims"
	KeyIDTokenClaims = "id_token_claims"
)

// extra token response fields copied into the principal
var extraFields = []string{KeyScope, KeyIDToken, "refresh_expires_in", "session_state"}

// Introspection is an RFC 7662 token introspection response. Only Active
// is meaningful when the token is inactive.
type Introspection struct {
	Active    bool             `json:"active"`
	Scope     string           `json:"scope,omitempty"`
	ClientID  string           `json:"client_id,omitempty"`
	Username  string           `json:"username,omitempty"`
	TokenType string           `json:"token_type,omitempty"`
	Exp       int64            `json:"exp,omitempty"`
	Iat       int64            `json:"iat,omitempty"`
	Nbf       int64            `json:"nbf,omitempty"`
	Sub       string           `json:"sub,omitempty"`
	Aud       jwt.ClaimStrings `json:"aud,omitempty"`
	Iss       string           `json:"iss,omitempty"`
	Jti       string           `json:"jti,omitempty"`
}

// tokenPrincipal flattens a token endpoint response into principal
// attributes. expires_at is in unix seconds.
func tokenPrincipal(tok *oauth2.Token, now time.Time) map[string]any {
	principal := map[string]any{
		KeyAccessToken: tok.AccessToken,
	}
	if tok.TokenType != "" {
		principal[KeyTokenType] = tok.TokenType
	}
	if tok.RefreshToken != "" {
		principal[KeyRefreshToken] = tok.RefreshToken
	}
	switch {
	case tok.ExpiresIn > 0:
		principal[KeyExpiresAt] = now.Add(time.Duration(tok.ExpiresIn) * time.Second).Unix()
	case !tok.Expiry.IsZero():
		principal[KeyExpiresAt] = tok.Expiry.Unix()
	}
	for _, field := range extraFields {
		if v := tok.Extra(field); v != nil && v != "" {
			principal[field] = v
		}
	}
	return principal
}

// exchangeError converts an x/oauth2 failure into an auth.ExchangeError
// carrying the server's error payload.
func exchangeError(err error) *auth.ExchangeError {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return &auth.ExchangeError{Cause: err}
	}

	exErr := &auth.ExchangeError{
		ErrorCode:   retrieveErr.ErrorCode,
		Description: retrieveErr.ErrorDescription,
		Cause:       err,
	}
	if retrieveErr.Response != nil {
		exErr.StatusCode = retrieveErr.Response.StatusCode
	}
	var payload map[string]any
	if json.Unmarshal(retrieveErr.Body, &payload) == nil {
		exErr.Payload = payload
	}
	return exErr
}

// responseError builds an ExchangeError from a raw error response body.
func responseError(status int, body []byte) *auth.ExchangeError {
	exErr := &auth.ExchangeError{StatusCode: status}
	var payload map[string]any
	if json.Unmarshal(body, &payload) == nil {
		exErr.Payload = payload
		exErr.ErrorCode, _ = payload["error"].(string)
		exErr.Description, _ = payload["error_description"].(string)
	}
	return exErr
}
