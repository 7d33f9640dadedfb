package eventauth

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures of the identity core. Kinds are stable strings so they can
// be used as metric labels and JSON error codes.
type ErrorKind string

const (
	KindInvalidCredentials       ErrorKind = "invalid_credentials"
	KindWeakCredential           ErrorKind = "weak_credential"
	KindEmailAlreadyUsed         ErrorKind = "email_already_used"
	KindInvalidEmail             ErrorKind = "invalid_email"
	KindInvalidInput             ErrorKind = "invalid_input"
	KindMissingAuthorizationCode ErrorKind = "missing_authorization_code"
	KindProviderExchangeFailed   ErrorKind = "provider_exchange_failed"
	KindSessionExpired           ErrorKind = "session_expired"
	KindSessionMalformed         ErrorKind = "session_malformed"
	KindSessionUnknown           ErrorKind = "session_unknown"
	KindStorageUnavailable       ErrorKind = "storage_unavailable"
)

// Errors returned by store implementations
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrCredentialNotFound     = errors.New("credential not found")
	ErrEmailTaken             = errors.New("email already registered")
	ErrSocialIdentityNotFound = errors.New("social identity not found")
	ErrSocialIdentityTaken    = errors.New("social identity already linked")
	ErrSessionNotFound        = errors.New("session not found")
)

// AuthError is the error type surfaced by every operation of the core.
type AuthError struct {
	Kind    ErrorKind
	Message string // internal detail, safe for logs
	Field   string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches another *AuthError by kind, so errors.Is(err, ErrInvalidCredentials) works
// regardless of message or wrapped cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// NewAuthError creates an AuthError of the given kind
func NewAuthError(kind ErrorKind, message, field string) *AuthError {
	return &AuthError{Kind: kind, Message: message, Field: field}
}

func wrapError(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons
var (
	ErrInvalidCredentials       = &AuthError{Kind: KindInvalidCredentials}
	ErrWeakCredential           = &AuthError{Kind: KindWeakCredential}
	ErrEmailAlreadyUsed         = &AuthError{Kind: KindEmailAlreadyUsed}
	ErrInvalidEmail             = &AuthError{Kind: KindInvalidEmail}
	ErrMissingAuthorizationCode = &AuthError{Kind: KindMissingAuthorizationCode}
	ErrProviderExchangeFailed   = &AuthError{Kind: KindProviderExchangeFailed}
	ErrSessionExpired           = &AuthError{Kind: KindSessionExpired}
	ErrSessionMalformed         = &AuthError{Kind: KindSessionMalformed}
	ErrSessionUnknown           = &AuthError{Kind: KindSessionUnknown}
	ErrStorageUnavailable       = &AuthError{Kind: KindStorageUnavailable}
)

// KindOf returns the kind of err, or "" when err is not an AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// PublicMessage returns the message that may be shown to an end user. Authentication
// failures are collapsed so the reason is never observable from outside.
func PublicMessage(err error) string {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return "Something went wrong, please try again"
	}
	switch ae.Kind {
	case KindInvalidCredentials:
		return "Invalid credentials"
	case KindSessionExpired, KindSessionMalformed, KindSessionUnknown:
		return "Please log in again"
	case KindWeakCredential:
		return fmt.Sprintf("Password must be at least %d characters", MinPasswordLength)
	case KindEmailAlreadyUsed:
		return "Email is already registered"
	case KindInvalidEmail:
		return "A valid email address is required"
	case KindInvalidInput:
		if ae.Message != "" {
			return ae.Message
		}
		return "Invalid input"
	case KindMissingAuthorizationCode:
		return "Authorization code is missing"
	default:
		return "Something went wrong, please try again"
	}
}

// HTTPStatus maps an error to the status code used by the HTTP surface.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidCredentials, KindSessionExpired, KindSessionMalformed, KindSessionUnknown:
		return http.StatusUnauthorized
	case KindWeakCredential, KindInvalidEmail, KindInvalidInput, KindMissingAuthorizationCode:
		return http.StatusBadRequest
	case KindEmailAlreadyUsed:
		return http.StatusConflict
	case KindProviderExchangeFailed:
		return http.StatusBadGateway
	case KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsAuthFailure reports whether err means "the caller is not (or no longer) authenticated".
func IsAuthFailure(err error) bool {
	switch KindOf(err) {
	case KindInvalidCredentials, KindSessionExpired, KindSessionMalformed, KindSessionUnknown:
		return true
	}
	return false
}

// PublicCode is the machine readable counterpart of PublicMessage, used as the "code" of
// JSON error bodies. It collapses the same kinds PublicMessage does.
func PublicCode(err error) string {
	switch kind := KindOf(err); kind {
	case KindSessionExpired, KindSessionMalformed, KindSessionUnknown:
		return "unauthenticated"
	case KindStorageUnavailable, KindProviderExchangeFailed, "":
		return "internal"
	default:
		return string(kind)
	}
}
