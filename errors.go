package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required input is absent.
	ErrMissingField = errors.New("missing required field")
	// ErrInvalidCredentials is the only credential failure surfaced to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotRegistered marks a login for an identifier no identity owns.
	// It wraps ErrInvalidCredentials and never leaves the engine unmerged.
	ErrNotRegistered = fmt.Errorf("%w: identity not registered", ErrInvalidCredentials)
	// ErrPasswordMismatch marks a login whose password did not verify.
	// It wraps ErrInvalidCredentials and never leaves the engine unmerged.
	ErrPasswordMismatch = fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)

	// ErrMissingToken is returned when a refresh request carries no token.
	ErrMissingToken = errors.New("missing token")
	// ErrSignatureInvalid is returned for malformed or badly signed tokens.
	ErrSignatureInvalid = errors.New("token signature invalid")
	// ErrExpired is returned for well-signed tokens past their expiry.
	ErrExpired = errors.New("token expired")
	// ErrUnknownSubject is returned when a valid token names no identity.
	ErrUnknownSubject = errors.New("token subject unknown")
	// ErrSessionRevoked is returned when a valid refresh token is no longer
	// the one stored for its identity.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrTokenPersistenceFailed is returned when a freshly issued refresh
	// token could not be stored. It is a server fault.
	ErrTokenPersistenceFailed = errors.New("token persistence failed")

	// ErrAccountExists is returned by Register for a taken username or email.
	ErrAccountExists = errors.New("account already exists")
	// ErrUserNotFound is returned by profile operations for unknown ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrLoginRateLimited is returned when failed logins exceed the budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrStoreUnavailable is returned when the credential store fails
	// outside the token paths.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned when methods run on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ErrorKind returns the stable taxonomy name of err, suitable for logs,
// audit events and API error envelopes. Unknown errors map to "internal".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrUnknownSubject):
		return "unknown_subject"
	case errors.Is(err, ErrSessionRevoked):
		return "session_revoked"
	case errors.Is(err, ErrTokenPersistenceFailed):
		return "token_persistence_failed"
	case errors.Is(err, ErrAccountExists):
		return "account_exists"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrLoginRateLimited):
		return "login_rate_limited"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrEngineNotReady):
		return "engine_not_ready"
	default:
		return "internal"
	}
}
