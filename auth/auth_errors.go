package auth

import (
	"errors"
	"fmt"
)

var (
	ErrAuthentication       = errors.New("authentication failed")
	ErrTokenVerification    = errors.New("token verification failed")
	ErrTokenExchange        = errors.New("token exchange failed")
	ErrTokenExpired         = errors.New("token expired")
	ErrRefresh              = errors.New("token refresh failed")
	ErrUnboundProvider      = errors.New("user is not bound to an auth provider")
	ErrTypeMismatch         = errors.New("auth provider type mismatch")
	ErrUnknownSession       = errors.New("unknown login session")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrBackingStore         = errors.New("backing store failure")
	ErrInvalidConfig        = errors.New("invalid configuration")
)

// Reasons reported by AuthenticationError. Only ReasonInvalidCredentials and
// ReasonMissingField are visible unless detailed errors are enabled.
const (
	ReasonMissingField       = "missing_field"
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonUnknownPrincipal   = "unknown_principal"
	ReasonWrongPassword      = "wrong_password"
	ReasonBackingStore       = "backing_store"
	ReasonAmbiguousPrincipal = "ambiguous_principal"
)

// AuthenticationError is returned when credentials could not be verified.
// Reason and Cause are always available to callers through errors.As, but
// Error() hides them unless the provider runs with detailed errors so that
// "unknown user" and "wrong password" print the same.
type AuthenticationError struct {
	Reason   string
	Cause    error
	Detailed bool
}

func NewAuthenticationError(reason string, cause error, detailed bool) *AuthenticationError {
	return &AuthenticationError{Reason: reason, Cause: cause, Detailed: detailed}
}

func (e *AuthenticationError) Error() string {
	if !e.Detailed {
		if e.Reason == ReasonMissingField && e.Cause != nil {
			return fmt.Sprintf("%s: %s", ErrAuthentication, e.Cause)
		}
		return fmt.Sprintf("%s: invalid credentials", ErrAuthentication)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", ErrAuthentication, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", ErrAuthentication, e.Reason)
}

func (e *AuthenticationError) Is(target error) bool {
	return target == ErrAuthentication
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// VerificationReason identifies why a token was rejected.
type VerificationReason string

const (
	VerificationMalformed            VerificationReason = "malformed"
	VerificationBadSignature         VerificationReason = "bad_signature"
	VerificationExpired              VerificationReason = "expired"
	VerificationNotYetValid          VerificationReason = "not_yet_valid"
	VerificationIssuerMismatch       VerificationReason = "issuer_mismatch"
	VerificationAudienceMismatch     VerificationReason = "audience_mismatch"
	VerificationRevoked              VerificationReason = "revoked"
	VerificationUnsupportedAlgorithm VerificationReason = "unsupported_algorithm"
)

// VerificationError is a token verification failure with its sub-reason.
// It matches both ErrTokenVerification and ErrAuthentication.
type VerificationError struct {
	Reason VerificationReason
	Cause  error
}

func (e *VerificationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s", ErrTokenVerification, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s (%s)", ErrTokenVerification, e.Reason)
}

func (e *VerificationError) Is(target error) bool {
	return target == ErrTokenVerification || target == ErrAuthentication
}

func (e *VerificationError) Unwrap() error {
	return e.Cause
}

// ExchangeError is returned when an authorization server rejects a token
// request or cannot be reached. Payload holds the decoded error body when
// the server sent one.
type ExchangeError struct {
	StatusCode  int
	ErrorCode   string
	Description string
	Payload     map[string]any
	Cause       error
}

func (e *ExchangeError) Error() string {
	switch {
	case e.ErrorCode != "" && e.Description != "":
		return fmt.Sprintf("%s: status %d: %s: %s", ErrTokenExchange, e.StatusCode, e.ErrorCode, e.Description)
	case e.ErrorCode != "":
		return fmt.Sprintf("%s: status %d: %s", ErrTokenExchange, e.StatusCode, e.ErrorCode)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s", ErrTokenExchange, e.Cause)
	default:
		return fmt.Sprintf("%s: status %d", ErrTokenExchange, e.StatusCode)
	}
}

func (e *ExchangeError) Is(target error) bool {
	return target == ErrTokenExchange
}

func (e *ExchangeError) Unwrap() error {
	return e.Cause
}
