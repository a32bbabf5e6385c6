package core

import (
	"errors"
	"net/http"
)

// User errors
var (
	ErrUserNotFound = errors.New("user not found")           // 404
	ErrEmailTaken   = errors.New("email already registered") // 409
)

// Session errors
var (
	ErrMissingToken      = errors.New("missing session token")                                   // 401
	ErrInvalidAuthHeader = errors.New("invalid authorization format, expected 'Bearer <token>'") // 401
	ErrUnauthorized      = errors.New("unauthorized")                                            // 401
	ErrSessionNotFound   = errors.New("session not found")                                       // 404
	ErrCacheNotFound     = errors.New("session not found in cache")
)

// OAuth errors
var (
	ErrUnknownProvider      = errors.New("unknown oauth provider")         // 400
	ErrOAuthAccountNotFound = errors.New("oauth account not found")        // 404
	ErrInvalidOAuthState    = errors.New("invalid or expired oauth state") // 401
	ErrProviderExchange     = errors.New("oauth code exchange failed")     // 502
	ErrProviderProfile      = errors.New("oauth profile fetch failed")     // 502
	ErrProviderEmail        = errors.New("provider returned no verified email")
)

// Two-factor errors
var (
	ErrTOTPNotFound          = errors.New("TOTP is not set up")               // 400
	ErrTOTPAlreadyRegistered = errors.New("TOTP is already set up")           // 400
	ErrInvalidTOTPSecret     = errors.New("invalid TOTP secret")              // 400
	ErrInvalidTOTPCode       = errors.New("invalid TOTP code")                // 401
	ErrPasskeyNotFound       = errors.New("passkey not found")                // 400
	ErrTwoFactorRequired     = errors.New("two-factor verification required") // 403
)

// Config errors (server-side configuration)
var (
	ErrDBAdapterRequired   = errors.New("database adapter is required") // 500
	ErrHTTPAdapterRequired = errors.New("adapter is required")          // 500
	ErrSecretRequired      = errors.New("secret is required")           // 500
	ErrSecretTooShort      = errors.New("secret too short")             // 500
)

// ErrorKind is the coarse class of a failure surfaced to callers.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthorized
	KindInvalidInput
	KindInvalidState
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidInput:
		return "invalid_input"
	case KindInvalidState:
		return "invalid_state"
	case KindUpstream:
		return "upstream_failure"
	default:
		return "internal"
	}
}

// StatusError is a failure carrying an HTTP status and a user-facing message.
type StatusError struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func Unauthorized(message string, err error) *StatusError {
	return &StatusError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: message, Err: err}
}

func InvalidInput(message string, err error) *StatusError {
	return &StatusError{Kind: KindInvalidInput, Status: http.StatusBadRequest, Message: message, Err: err}
}

func InvalidState(message string, err error) *StatusError {
	return &StatusError{Kind: KindInvalidState, Status: http.StatusBadRequest, Message: message, Err: err}
}

func UpstreamFailure(message string, err error) *StatusError {
	return &StatusError{Kind: KindUpstream, Status: http.StatusBadGateway, Message: message, Err: err}
}

func Internal(message string, err error) *StatusError {
	return &StatusError{Kind: KindInternal, Status: http.StatusInternalServerError, Message: message, Err: err}
}
