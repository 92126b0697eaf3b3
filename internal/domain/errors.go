package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict signals a uniqueness violation, e.g. a session token collision
	// on insert. Callers regenerate and retry instead of overwriting.
	ErrConflict = errors.New("conflict")
	// ErrSessionInvalid covers absent, already-invalidated and malformed
	// sessions. A single sentinel avoids leaking which of the three it was.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSessionExpired is the lazy-expiry rejection; by the time the caller
	// sees it the record has been flipped inactive with reason "expired".
	ErrSessionExpired       = errors.New("session expired")
	ErrAccountLocked        = errors.New("account locked")
	ErrInvalidInput         = errors.New("invalid input")
	ErrTwoFactorCodeInvalid = errors.New("two-factor code invalid")
	// ErrTwoFactorNotConfigured is distinct from a wrong code: the account has
	// no secret enrolled, so verification cannot even be attempted.
	ErrTwoFactorNotConfigured = errors.New("two-factor not configured")
)
