package oauth2

// Flow selects the grant a Client runs in GetToken.
type Flow string

const (
	// FlowAuthCode exchanges an authorization code returned to the redirect
	// URL. The user agent is sent to AuthorizeURL first.
	FlowAuthCode Flow = "AUTH_CODE"

	// FlowClient authenticates the client itself with its secret. There is
	// no user and normally no refresh token.
	FlowClient Flow = "CLIENT"

	// FlowPassword sends the resource owner's username and password straight
	// to the token endpoint.
	FlowPassword Flow = "PASSWORD"
)

// ResponseModeType is the response_mode of an authorization request. The
// provider default applies when it is empty.
type ResponseModeType string

const (
	// QueryResponseMode returns parameters in the URL query string.
	QueryResponseMode ResponseModeType = "query"

	// FragmentResponseMode returns parameters in the URL fragment (after #).
	FragmentResponseMode ResponseModeType = "fragment"

	// FormPostResponseMode returns parameters via HTTP POST with auto-submitting HTML form.
	FormPostResponseMode ResponseModeType = "form_post"
)

// CodeMethodType is the PKCE challenge method. S256 is used when empty.
type CodeMethodType string

const (
	// CodeMethodTypeS256 sends code_challenge = BASE64URL(SHA256(code_verifier)).
	CodeMethodTypeS256 CodeMethodType = "S256"

	// CodeMethodTypeNone sends the verifier as the challenge. Not recommended.
	CodeMethodTypeNone CodeMethodType = "plain"
)

// TokenType is the token_type_hint sent to revocation and introspection
// endpoints.
type TokenType string

const (
	AccessTokenType  TokenType = "access_token"
	RefreshTokenType TokenType = "refresh_token"
)

// TokenState is the lifecycle state of an AccessToken.
type TokenState string

const (
	StateValid   TokenState = "VALID"
	StateExpired TokenState = "EXPIRED"
	StateRevoked TokenState = "REVOKED"
)
