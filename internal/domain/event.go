package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind is the closed enumeration of security-relevant occurrences.
type EventKind string

const (
	EventLoginSuccess            EventKind = "login_success"
	EventLoginFailed             EventKind = "login_failed"
	EventAccountLocked           EventKind = "account_locked"
	EventAccountUnlocked         EventKind = "account_unlocked"
	EventSessionCreated          EventKind = "session_created"
	EventSessionInvalidated      EventKind = "session_invalidated"
	EventSessionsBulkInvalidated EventKind = "sessions_bulk_invalidated"
	EventTwoFactorVerified       EventKind = "twofactor_verified"
	EventTwoFactorFailed         EventKind = "twofactor_failed"
	EventTwoFactorDisabled       EventKind = "twofactor_disabled"
	EventTwoFactorDisableFailed  EventKind = "twofactor_disable_failed"
	EventThreatDetected          EventKind = "threat_detected"
	EventRateLimitExceeded       EventKind = "rate_limit_exceeded"
	EventDataExport              EventKind = "data_export"
	EventSystemError             EventKind = "system_error"
)

// EventCategory groups kinds for dashboard aggregation.
type EventCategory string

const (
	CategoryAuthentication EventCategory = "authentication"
	CategorySession        EventCategory = "session"
	CategoryAccount        EventCategory = "account"
	CategoryThreat         EventCategory = "threat"
	CategoryData           EventCategory = "data"
	CategorySystem         EventCategory = "system"
)

// Severity orders events for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the risk contribution of a threat at this severity.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 10
	case SeverityMedium:
		return 25
	case SeverityHigh:
		return 50
	case SeverityCritical:
		return 100
	default:
		return 10
	}
}

// ResponseAction is the default handling derived from severity when the
// writer supplies none.
type ResponseAction string

const (
	ActionNone          ResponseAction = "none"
	ActionAlert         ResponseAction = "alert"
	ActionFlagForReview ResponseAction = "flag_for_review"
	ActionBlock         ResponseAction = "block"
)

// InvestigationStatus tracks reviewer workflow on a recorded event.
type InvestigationStatus string

const (
	InvestigationOpen          InvestigationStatus = "open"
	InvestigationInProgress    InvestigationStatus = "investigating"
	InvestigationResolved      InvestigationStatus = "resolved"
	InvestigationFalsePositive InvestigationStatus = "false_positive"
)

// Investigation is the only mutable part of a recorded event.
type Investigation struct {
	Status    InvestigationStatus
	Assignee  string
	Notes     string
	UpdatedAt time.Time
}

// Threat is one detector finding contributing to a risk score.
type Threat struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail,omitempty"`
}

// SecurityEvent is an append-only record of a security-relevant occurrence.
// OwnerID is nil for pre-authentication events. Severity, risk score and
// response action may be left zero by writers; the sink defaults them once at
// the persistence boundary.
type SecurityEvent struct {
	ID             uuid.UUID
	OwnerID        *uuid.UUID
	Kind           EventKind
	Category       EventCategory
	Severity       Severity
	Details        map[string]any
	Origin         Origin
	RiskScore      int
	ResponseAction ResponseAction
	OccurredAt     time.Time
	Investigation  *Investigation
}

// CategoryOf maps an event kind to its dashboard category.
func CategoryOf(kind EventKind) EventCategory {
	switch kind {
	case EventLoginSuccess, EventLoginFailed, EventTwoFactorVerified, EventTwoFactorFailed, EventTwoFactorDisabled, EventTwoFactorDisableFailed:
		return CategoryAuthentication
	case EventSessionCreated, EventSessionInvalidated, EventSessionsBulkInvalidated:
		return CategorySession
	case EventAccountLocked, EventAccountUnlocked:
		return CategoryAccount
	case EventThreatDetected, EventRateLimitExceeded:
		return CategoryThreat
	case EventDataExport:
		return CategoryData
	default:
		return CategorySystem
	}
}

// DefaultSeverity is the severity inferred from the kind when the writer
// supplies none.
func DefaultSeverity(kind EventKind) Severity {
	switch kind {
	case EventAccountLocked, EventThreatDetected:
		return SeverityHigh
	case EventLoginFailed, EventTwoFactorFailed, EventTwoFactorDisableFailed, EventRateLimitExceeded, EventSessionsBulkInvalidated:
		return SeverityMedium
	case EventSystemError:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// DefaultResponseAction derives the handling action from severity.
func DefaultResponseAction(severity Severity) ResponseAction {
	switch severity {
	case SeverityCritical:
		return ActionBlock
	case SeverityHigh:
		return ActionFlagForReview
	case SeverityMedium:
		return ActionAlert
	default:
		return ActionNone
	}
}
