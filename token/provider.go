// Package token issues and verifies JSON Web Tokens and exposes them as an
// auth.Provider. Claims become the user principal and roles and permissions
// are read back from the claims.
package token

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-core/auth"
	"github.com/jrsteele09/go-auth-core/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	Kind                    = "jwt"
	CredentialField         = "jwt"
	DefaultPermissionsClaim = "permissions"
	DefaultRolesClaim       = "roles"
	DefaultRolePrefix       = "role:"
)

var (
	_ auth.Provider    = (*Provider)(nil)
	_ auth.Resolver    = (*Provider)(nil)
	_ auth.TokenIssuer = (*Provider)(nil)
	_ auth.Revoker     = (*Provider)(nil)
)

var errUnsupportedAlgorithm = errors.New("token algorithm does not match the signer")

// Config holds the registered claim defaults and verification rules.
type Config struct {
	Issuer           string        `mapstructure:"issuer"`
	Audience         []string      `mapstructure:"audience"`
	Leeway           time.Duration `mapstructure:"leeway"`
	PermissionsClaim string        `mapstructure:"permissions_claim"`
	RolesClaim       string        `mapstructure:"roles_claim"`
	// DefaultExpiry applies when GenerateToken is given no expiry. Zero means
	// tokens without exp.
	DefaultExpiry time.Duration `mapstructure:"default_expiry"`
}

type Provider struct {
	cfg          Config
	signer       Signer
	revokedCache RevokedTokenCache
	rolePrefix   string
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

type ProviderOption func(*Provider)

func WithNowFunc(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.nowFunc = now
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ProviderOption {
	return func(p *Provider) {
		p.revokedCache = cache
	}
}

func WithRolePrefix(prefix string) ProviderOption {
	return func(p *Provider) {
		p.rolePrefix = prefix
	}
}

func WithLogger(logger zerolog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

func New(cfg Config, signer Signer, options ...ProviderOption) (*Provider, error) {
	if signer == nil {
		return nil, fmt.Errorf("[token.New] signer is required: %w", auth.ErrInvalidConfig)
	}
	if cfg.Leeway < 0 || cfg.DefaultExpiry < 0 {
		return nil, fmt.Errorf("[token.New] durations must not be negative: %w", auth.ErrInvalidConfig)
	}
	if cfg.PermissionsClaim == "" {
		cfg.PermissionsClaim = DefaultPermissionsClaim
	}
	if cfg.RolesClaim == "" {
		cfg.RolesClaim = DefaultRolesClaim
	}

	p := &Provider{
		cfg:        cfg,
		signer:     signer,
		rolePrefix: DefaultRolePrefix,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(p)
	}

	if p.nowFunc == nil {
		p.nowFunc = time.Now
	}
	if p.revokedCache == nil {
		p.revokedCache = NewInMemoryRevokedTokenCacheWithClock(p.nowFunc)
	}
	return p, nil
}

func (p *Provider) Kind() string {
	return Kind
}

func (p *Provider) Signer() Signer {
	return p.signer
}

// GenerateToken signs claims merged with the registered claims described
// by options. Options override caller claims; the configured issuer only
// fills a missing iss. Every token gets a jti unless the caller set one.
func (p *Provider) GenerateToken(claims map[string]any, options auth.TokenOptions) (string, error) {
	if options.ExpiresInSeconds > 0 && options.ExpiresInMinutes > 0 {
		return "", fmt.Errorf("[token.GenerateToken] set either ExpiresInSeconds or ExpiresInMinutes: %w", auth.ErrInvalidConfig)
	}
	if options.ExpiresInSeconds < 0 || options.ExpiresInMinutes < 0 {
		return "", fmt.Errorf("[token.GenerateToken] negative expiry: %w", auth.ErrInvalidConfig)
	}

	mc := jwt.MapClaims(utils.CopyMap(claims))
	if mc == nil {
		mc = jwt.MapClaims{}
	}
	now := p.nowFunc()

	if !options.NoTimestamp {
		mc["iat"] = now.Unix()
	}
	if options.Issuer != "" {
		mc["iss"] = options.Issuer
	} else if _, ok := mc["iss"]; !ok && p.cfg.Issuer != "" {
		mc["iss"] = p.cfg.Issuer
	}
	audience := options.Audience
	if len(audience) == 0 {
		audience = p.cfg.Audience
	}
	switch len(audience) {
	case 0:
	case 1:
		mc["aud"] = audience[0]
	default:
		mc["aud"] = append([]string(nil), audience...)
	}
	if options.Subject != "" {
		mc["sub"] = options.Subject
	}

	var expiry time.Duration
	switch {
	case options.ExpiresInSeconds > 0:
		expiry = time.Duration(options.ExpiresInSeconds) * time.Second
	case options.ExpiresInMinutes > 0:
		expiry = time.Duration(options.ExpiresInMinutes) * time.Minute
	default:
		expiry = p.cfg.DefaultExpiry
	}
	if expiry > 0 {
		mc["exp"] = now.Add(expiry).Unix()
	}

	if len(options.Permissions) > 0 {
		mc[p.cfg.PermissionsClaim] = append([]string(nil), options.Permissions...)
	}
	if _, ok := mc["jti"]; !ok {
		mc["jti"] = uuid.New().String()
	}

	signed, err := p.signer.Sign(mc, options.Headers)
	if err != nil {
		return "", fmt.Errorf("[token.GenerateToken] %w", err)
	}
	return signed, nil
}

// Authenticate verifies the token under the "jwt" credential key.
func (p *Provider) Authenticate(ctx context.Context, credentials auth.Credentials) (auth.User, error) {
	raw, err := credentials.Require(CredentialField)
	if err != nil {
		return nil, err
	}

	claims, err := p.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}

	user, err := newUser(p, raw, claims)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Verify checks signature, time claims, issuer, audience and revocation and
// returns the claims.
func (p *Provider) Verify(_ context.Context, raw string) (jwt.MapClaims, error) {
	claims, err := p.parse(raw, false)
	if err != nil {
		var verr *auth.VerificationError
		if errors.As(err, &verr) {
			p.logger.Debug().Str("reason", string(verr.Reason)).Msg("token: verification failed")
		}
		return nil, err
	}

	if jti, _ := claims["jti"].(string); jti != "" && p.revokedCache.IsRevoked(jti) {
		p.logger.Debug().Str("jti", jti).Msg("token: revoked token presented")
		return nil, &auth.VerificationError{Reason: auth.VerificationRevoked}
	}
	return claims, nil
}

// Revoke marks the token's jti as revoked. The signature must be valid but
// an expired token may still be revoked. Revoking twice is not an error.
func (p *Provider) Revoke(_ context.Context, raw string) error {
	claims, err := p.parse(raw, true)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return fmt.Errorf("[token.Revoke] token has no jti: %w", auth.ErrUnsupportedOperation)
	}

	var exp time.Time
	if t, err := claims.GetExpirationTime(); err == nil && t != nil {
		exp = t.Add(p.cfg.Leeway)
	}

	p.revokedCache.Cleanup()
	if err := p.revokedCache.Add(jti, exp); err != nil {
		return fmt.Errorf("[token.Revoke] %w", err)
	}
	p.logger.Debug().Str("jti", jti).Msg("token: revoked")
	return nil
}

// Decode returns the claims without verifying the signature.
func Decode(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, &auth.VerificationError{Reason: auth.VerificationMalformed, Cause: err}
	}
	return claims, nil
}

func (p *Provider) parse(raw string, skipClaims bool) (jwt.MapClaims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &auth.VerificationError{Reason: auth.VerificationMalformed, Cause: errors.New("empty token")}
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithTimeFunc(p.nowFunc),
		jwt.WithLeeway(p.cfg.Leeway),
	}
	if skipClaims {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOptions...).ParseWithClaims(raw, claims, p.keyFunc)
	if err != nil {
		return nil, verificationError(err)
	}

	if skipClaims {
		return claims, nil
	}
	// a missing iss or aud is a mismatch, not a malformed token
	if p.cfg.Issuer != "" {
		if iss, _ := claims.GetIssuer(); iss != p.cfg.Issuer {
			return nil, &auth.VerificationError{Reason: auth.VerificationIssuerMismatch, Cause: jwt.ErrTokenInvalidIssuer}
		}
	}
	if len(p.cfg.Audience) > 0 {
		aud, _ := claims.GetAudience()
		if !anyMatch(aud, p.cfg.Audience) {
			return nil, &auth.VerificationError{Reason: auth.VerificationAudienceMismatch, Cause: jwt.ErrTokenInvalidAudience}
		}
	}
	return claims, nil
}

func (p *Provider) keyFunc(t *jwt.Token) (any, error) {
	if t.Method == nil || t.Method.Alg() != p.signer.GetSigningMethod().Alg() {
		return nil, errUnsupportedAlgorithm
	}
	return p.signer.GetVerificationKey(t)
}

func verificationError(err error) *auth.VerificationError {
	reason := auth.VerificationMalformed
	switch {
	case errors.Is(err, errUnsupportedAlgorithm), errors.Is(err, jwt.ErrTokenUnverifiable):
		reason = auth.VerificationUnsupportedAlgorithm
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = auth.VerificationMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = auth.VerificationBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = auth.VerificationExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		reason = auth.VerificationNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		reason = auth.VerificationIssuerMismatch
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		reason = auth.VerificationAudienceMismatch
	}
	return &auth.VerificationError{Reason: reason, Cause: err}
}

func (p *Provider) ResolveRole(_ context.Context, user auth.User, role string) (bool, error) {
	principal := user.Principal()
	if utils.Contains(utils.Strings(principal[p.cfg.RolesClaim], " "), role) {
		return true, nil
	}
	if p.rolePrefix == "" {
		return false, nil
	}
	return utils.Contains(utils.Strings(principal[p.cfg.PermissionsClaim], " "), p.rolePrefix+role), nil
}

func (p *Provider) ResolvePermission(ctx context.Context, user auth.User, permission string) (bool, error) {
	if p.rolePrefix != "" && strings.HasPrefix(permission, p.rolePrefix) {
		return p.ResolveRole(ctx, user, strings.TrimPrefix(permission, p.rolePrefix))
	}
	return utils.Contains(utils.Strings(user.Principal()[p.cfg.PermissionsClaim], " "), permission), nil
}

func anyMatch(have, want []string) bool {
	for _, w := range want {
		if utils.Contains(have, w) {
			return true
		}
	}
	return false
}
