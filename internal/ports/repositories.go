package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

// SessionRepository persists session lifecycle state. Every transition is a
// conditional row update (update-if-still-active) so a validate racing a
// sweep can never both win or leave a half-written record.
type SessionRepository interface {
	// Create inserts a new active session and returns domain.ErrConflict when
	// the token already exists, so callers regenerate instead of overwriting.
	Create(ctx context.Context, session domain.Session) error
	FindByToken(ctx context.Context, token string) (domain.Session, error)

	// MarkActivity bumps last-activity, appends one entry to the bounded
	// activity log and optionally extends expiry, only while the session is
	// still active. The append happens store-side so concurrent validates of
	// the same session never overwrite each other's entries. It returns
	// domain.ErrSessionInvalid when the session is no longer active.
	MarkActivity(ctx context.Context, token string, at time.Time, entry domain.ActivityEntry, newExpiry *time.Time) error

	// InvalidateIfActive flips the session inactive and reports whether this
	// call performed the transition; false means it was already dead or absent.
	InvalidateIfActive(ctx context.Context, token string, reason domain.InvalidationReason, by string, at time.Time) (bool, error)
	InvalidateAllForOwner(ctx context.Context, ownerID uuid.UUID, reason domain.InvalidationReason, at time.Time) (int64, error)
	InvalidateExpired(ctx context.Context, now time.Time) (int64, error)

	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Session, error)
}

// EventFilter narrows security event listings for dashboard feeds.
type EventFilter struct {
	OwnerID  *uuid.UUID
	Category domain.EventCategory
	Severity domain.Severity
	Since    *time.Time
	Limit    int
	Offset   int
}

// SecurityEventRepository is the append-only event log. Records are immutable
// after insert except for the investigation sub-record.
type SecurityEventRepository interface {
	Insert(ctx context.Context, event domain.SecurityEvent) error
	List(ctx context.Context, filter EventFilter) ([]domain.SecurityEvent, error)
	CountBySeverity(ctx context.Context, since time.Time) (map[domain.Severity]int64, error)
	UpdateInvestigation(ctx context.Context, eventID uuid.UUID, investigation domain.Investigation) error
}
