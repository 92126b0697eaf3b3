package domain

import (
	"time"

	"github.com/google/uuid"
)

// InvalidationReason is the closed set of ways a session can end.
type InvalidationReason string

const (
	InvalidationExpired        InvalidationReason = "expired"
	InvalidationUserLogout     InvalidationReason = "user_logout"
	InvalidationAdmin          InvalidationReason = "admin_invalidated"
	InvalidationSecurity       InvalidationReason = "security_concern"
	InvalidationPasswordChange InvalidationReason = "password_change"
	InvalidationAccountLocked  InvalidationReason = "account_locked"
)

// MaxActivityEntries bounds the per-session activity log; the oldest entry is
// evicted first once the cap is hit.
const MaxActivityEntries = 100

// ActivityEntry is one (action, timestamp, origin) tuple of the bounded
// per-session activity log.
type ActivityEntry struct {
	Action    string    `json:"action"`
	At        time.Time `json:"at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Session binds an opaque bearer token to an account for a bounded window.
// Invalidation is terminal: a dead session is never reactivated, a new one is
// issued instead.
type Session struct {
	Token          string
	OwnerID        uuid.UUID
	Origin         Origin
	Fingerprint    string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time

	IsActive           bool
	InvalidatedAt      *time.Time
	InvalidatedBy      string
	InvalidationReason InvalidationReason

	RequiresTwoFactor bool
	TwoFactorVerified bool

	Activity []ActivityEntry
}

// Valid reports whether the session may still be used at the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// AppendActivity records an action against the session, evicting the oldest
// entry once the log is full.
func (s *Session) AppendActivity(entry ActivityEntry) {
	s.Activity = append(s.Activity, entry)
	if len(s.Activity) > MaxActivityEntries {
		s.Activity = s.Activity[len(s.Activity)-MaxActivityEntries:]
	}
}
