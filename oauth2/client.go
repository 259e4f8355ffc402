// Package oauth2 is an OAuth2 and OpenID Connect client. It obtains tokens
// with the authorization code, client credentials and password grants and
// exposes them as auth.User values.
package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-resty/resty/v2"
	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	Kind              = "oauth2"
	DefaultRolePrefix = "role:"
)

// Credential keys understood by Client.Authenticate.
const (
	CodeField         = "code"
	RedirectURLField  = "redirect_uri"
	CodeVerifierField = "code_verifier"
	UsernameField     = "username"
	PasswordField     = "password"
	AccessTokenField  = KeyAccessToken
	RefreshTokenField = KeyRefreshToken
)

var (
	_ auth.Provider = (*Client)(nil)
	_ auth.Resolver = (*Client)(nil)
)

// HTTPError is a non-2xx response from a protected resource.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("oauth2: resource request failed with status %d", e.StatusCode)
}

type Client struct {
	cfg        Config
	oauth      *oauth2.Config
	httpClient *http.Client
	rest       *resty.Client
	verifier   *oidc.IDTokenVerifier
	rolePrefix string
	nowFunc    func() time.Time
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithIDTokenVerifier replaces the verifier built from Config.JWKSPath.
func WithIDTokenVerifier(v *oidc.IDTokenVerifier) Option {
	return func(c *Client) {
		c.verifier = v
	}
}

func WithNowFunc(now func() time.Time) Option {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithRolePrefix(prefix string) Option {
	return func(c *Client) {
		c.rolePrefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(cfg Config, options ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		rolePrefix: DefaultRolePrefix,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if len(cfg.Headers) > 0 {
		hc := *c.httpClient
		hc.Transport = &headerTransport{base: hc.Transport, headers: cfg.Headers}
		c.httpClient = &hc
	}

	c.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Endpoint(cfg.AuthorizationPath),
			TokenURL: cfg.Endpoint(cfg.TokenPath),
		},
		RedirectURL: cfg.RedirectURL,
		Scopes:      cfg.Scopes,
	}
	c.rest = resty.NewWithClient(c.httpClient).SetHeader("Accept", "application/json")

	if cfg.OIDC && c.verifier == nil {
		if cfg.JWKSPath == "" {
			return nil, fmt.Errorf("[oauth2.New] OIDC requires a JWKS path: %w", auth.ErrInvalidConfig)
		}
		keySet := oidc.NewRemoteKeySet(c.context(context.Background()), cfg.Endpoint(cfg.JWKSPath))
		c.verifier = oidc.NewVerifier(cfg.Issuer, keySet, &oidc.Config{ClientID: cfg.ClientID, Now: c.nowFunc})
	}
	return c, nil
}

func (c *Client) Kind() string {
	return Kind
}

func (c *Client) Config() Config {
	return c.cfg
}

// AuthorizeParams are the per-request authorization URL parameters.
type AuthorizeParams struct {
	State        string
	RedirectURL  string
	Scopes       []string
	CodeVerifier string // adds a PKCE challenge
	CodeMethod   CodeMethodType
	ResponseMode ResponseModeType
	Nonce        string
	Prompt       string
	Extra        map[string]string
}

// AuthorizeURL builds the URL the user agent is sent to. It makes no
// requests.
func (c *Client) AuthorizeURL(params AuthorizeParams) string {
	var opts []oauth2.AuthCodeOption
	scopes := params.Scopes
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	if len(scopes) > 0 {
		opts = append(opts, oauth2.SetAuthURLParam("scope", strings.Join(scopes, c.cfg.ScopeSeparator)))
	}
	if params.RedirectURL != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", params.RedirectURL))
	}
	if params.CodeVerifier != "" {
		switch params.CodeMethod {
		case CodeMethodTypeNone:
			opts = append(opts,
				oauth2.SetAuthURLParam("code_challenge", params.CodeVerifier),
				oauth2.SetAuthURLParam("code_challenge_method", string(CodeMethodTypeNone)),
			)
		default:
			opts = append(opts, oauth2.S256ChallengeOption(params.CodeVerifier))
		}
	}
	if params.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", string(params.ResponseMode)))
	}
	if params.Nonce != "" {
		opts = append(opts, oauth2.SetAuthURLParam("nonce", params.Nonce))
	}
	if params.Prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", params.Prompt))
	}
	for k, v := range params.Extra {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return c.oauth.AuthCodeURL(params.State, opts...)
}

// TokenParams are the grant specific inputs of GetToken.
type TokenParams struct {
	Code         string
	RedirectURL  string
	CodeVerifier string
	Username     string
	Password     string
	Scopes       []string
	Nonce        string // checked against the ID token when set
}

// GetToken runs the configured grant. Server rejections are returned as
// *auth.ExchangeError.
func (c *Client) GetToken(ctx context.Context, params TokenParams) (*AccessToken, error) {
	ctx = c.context(ctx)

	var (
		tok *oauth2.Token
		err error
	)
	switch c.cfg.Flow {
	case FlowAuthCode:
		if params.Code == "" {
			return nil, auth.NewAuthenticationError(auth.ReasonMissingField, fmt.Errorf("credentials must contain %q", CodeField), false)
		}
		var opts []oauth2.AuthCodeOption
		if params.RedirectURL != "" {
			opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", params.RedirectURL))
		}
		if params.CodeVerifier != "" {
			opts = append(opts, oauth2.VerifierOption(params.CodeVerifier))
		}
		tok, err = c.oauth.Exchange(ctx, params.Code, opts...)
	case FlowClient:
		cc := clientcredentials.Config{
			ClientID:     c.cfg.ClientID,
			ClientSecret: c.cfg.ClientSecret,
			TokenURL:     c.oauth.Endpoint.TokenURL,
			Scopes:       c.scopes(params.Scopes),
		}
		tok, err = cc.Token(ctx)
	case FlowPassword:
		if params.Username == "" {
			return nil, auth.NewAuthenticationError(auth.ReasonMissingField, fmt.Errorf("credentials must contain %q", UsernameField), false)
		}
		oc := *c.oauth
		oc.Scopes = c.scopes(params.Scopes)
		tok, err = oc.PasswordCredentialsToken(ctx, params.Username, params.Password)
	default:
		return nil, fmt.Errorf("[Client.GetToken] flow %q: %w", c.cfg.Flow, auth.ErrUnsupportedOperation)
	}
	if err != nil {
		exErr := exchangeError(err)
		c.logger.Debug().Str("flow", string(c.cfg.Flow)).Int("status", exErr.StatusCode).Str("error", exErr.ErrorCode).Msg("oauth2: token request failed")
		return nil, exErr
	}

	principal := tokenPrincipal(tok, c.nowFunc())
	if err := c.verifyIDToken(ctx, principal, params.Nonce); err != nil {
		return nil, err
	}

	at, err := newAccessToken(c, principal)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().Str("flow", string(c.cfg.Flow)).Str("sub", at.Subject()).Msg("oauth2: token obtained")
	return at, nil
}

// Authenticate maps credentials onto GetToken. An "access_token" entry
// wraps an existing token without contacting the server.
func (c *Client) Authenticate(ctx context.Context, credentials auth.Credentials) (auth.User, error) {
	if raw, ok := credentials.String(AccessTokenField); ok {
		principal := map[string]any{KeyAccessToken: raw}
		if rt, ok := credentials.String(RefreshTokenField); ok {
			principal[KeyRefreshToken] = rt
		}
		at, err := newAccessToken(c, principal)
		if err != nil {
			return nil, err
		}
		return at, nil
	}

	params := TokenParams{}
	params.Code, _ = credentials.String(CodeField)
	params.RedirectURL, _ = credentials.String(RedirectURLField)
	params.CodeVerifier, _ = credentials.String(CodeVerifierField)
	params.Username, _ = credentials.String(UsernameField)
	params.Password, _ = credentials.String(PasswordField)
	if c.cfg.Flow == FlowPassword {
		if _, err := credentials.Require(PasswordField); err != nil {
			return nil, err
		}
	}

	at, err := c.GetToken(ctx, params)
	if err != nil {
		return nil, err
	}
	return at, nil
}

// API calls a protected resource with the token and decodes the JSON
// response. path may be relative to Site.
func (c *Client) API(ctx context.Context, token *AccessToken, method, path string, params map[string]any) (any, error) {
	if token == nil {
		return nil, fmt.Errorf("[Client.API] access token is required: %w", auth.ErrUnboundProvider)
	}
	if token.Expired() {
		return nil, fmt.Errorf("[Client.API] %w", auth.ErrTokenExpired)
	}

	req := c.rest.R().SetContext(ctx).SetAuthToken(token.RawToken())
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		query := make(map[string]string, len(params))
		for k, v := range params {
			query[k] = fmt.Sprint(v)
		}
		req.SetQueryParams(query)
	default:
		if params != nil {
			req.SetBody(params)
		}
	}

	resp, err := req.Execute(method, c.cfg.Endpoint(path))
	if err != nil {
		return nil, fmt.Errorf("[Client.API] %w", err)
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		return nil, fmt.Errorf("[Client.API] %w", auth.ErrTokenExpired)
	}
	if resp.IsError() {
		return nil, &HTTPError{StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	if len(resp.Body()) == 0 {
		return nil, nil
	}

	var out any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("[Client.API] decode response: %w", err)
	}
	return out, nil
}

// IntrospectToken asks the authorization server about a token (RFC 7662).
func (c *Client) IntrospectToken(ctx context.Context, raw string, tokenType TokenType) (*Introspection, error) {
	if c.cfg.IntrospectionPath == "" {
		return nil, fmt.Errorf("[Client.IntrospectToken] no introspection endpoint: %w", auth.ErrUnsupportedOperation)
	}
	form := map[string]string{"token": raw}
	if tokenType != "" {
		form["token_type_hint"] = string(tokenType)
	}

	var result Introspection
	resp, err := c.clientRequest(ctx).SetFormData(form).SetResult(&result).Post(c.cfg.Endpoint(c.cfg.IntrospectionPath))
	if err != nil {
		return nil, &auth.ExchangeError{Cause: err}
	}
	if resp.IsError() {
		return nil, responseError(resp.StatusCode(), resp.Body())
	}
	return &result, nil
}

// UserInfo fetches the OIDC userinfo claims for the token.
func (c *Client) UserInfo(ctx context.Context, token *AccessToken) (map[string]any, error) {
	if c.cfg.UserInfoPath == "" {
		return nil, fmt.Errorf("[Client.UserInfo] no userinfo endpoint: %w", auth.ErrUnsupportedOperation)
	}
	out, err := c.API(ctx, token, http.MethodGet, c.cfg.UserInfoPath, nil)
	if err != nil {
		return nil, err
	}
	claims, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("[Client.UserInfo] unexpected response %T", out)
	}
	return claims, nil
}

func (c *Client) revoke(ctx context.Context, raw string, tokenType TokenType) error {
	if c.cfg.RevocationPath == "" {
		return fmt.Errorf("[Client.revoke] no revocation endpoint: %w", auth.ErrUnsupportedOperation)
	}
	resp, err := c.clientRequest(ctx).
		SetFormData(map[string]string{"token": raw, "token_type_hint": string(tokenType)}).
		Post(c.cfg.Endpoint(c.cfg.RevocationPath))
	if err != nil {
		return &auth.ExchangeError{Cause: err}
	}
	if resp.IsError() {
		return responseError(resp.StatusCode(), resp.Body())
	}
	return nil
}

func (c *Client) logout(ctx context.Context, accessToken, refreshToken string) error {
	form := map[string]string{"client_id": c.cfg.ClientID}
	if refreshToken != "" {
		form["refresh_token"] = refreshToken
	}
	req := c.rest.R().SetContext(ctx).SetFormData(form)
	if accessToken != "" {
		req.SetAuthToken(accessToken)
	}
	resp, err := req.Post(c.cfg.Endpoint(c.cfg.LogoutPath))
	if err != nil {
		return &auth.ExchangeError{Cause: err}
	}
	if resp.IsError() {
		return responseError(resp.StatusCode(), resp.Body())
	}
	return nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (map[string]any, error) {
	// an empty access token forces the token source to refresh
	src := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrRefresh, exchangeError(err))
	}
	principal := tokenPrincipal(tok, c.nowFunc())
	if err := c.verifyIDToken(ctx, principal, ""); err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrRefresh, err)
	}
	return principal, nil
}

// clientRequest is authenticated with the client credentials.
func (c *Client) clientRequest(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx).SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
}

func (c *Client) context(ctx context.Context) context.Context {
	return oidc.ClientContext(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient), c.httpClient)
}

func (c *Client) scopes(override []string) []string {
	if len(override) > 0 {
		return override
	}
	return c.cfg.Scopes
}

func (c *Client) ResolveRole(_ context.Context, user auth.User, role string) (bool, error) {
	if c.cfg.RolesClaim == "" {
		return false, nil
	}
	principal := user.Principal()
	for _, key := range []string{KeyClaims, KeyIDTokenClaims} {
		claims, _ := principal[key].(map[string]any)
		if utils.Contains(utils.Strings(lookupPath(claims, c.cfg.RolesClaim), " "), role) {
			return true, nil
		}
	}
	return false, nil
}

// ResolvePermission checks the granted scopes.
func (c *Client) ResolvePermission(ctx context.Context, user auth.User, permission string) (bool, error) {
	if c.rolePrefix != "" && strings.HasPrefix(permission, c.rolePrefix) {
		return c.ResolveRole(ctx, user, strings.TrimPrefix(permission, c.rolePrefix))
	}
	return utils.Contains(utils.Strings(user.Principal()[KeyScope], c.cfg.ScopeSeparator), permission), nil
}

// lookupPath walks a dotted path through nested claim objects.
func lookupPath(claims map[string]any, path string) any {
	var current any = claims
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return base.RoundTrip(req)
}
