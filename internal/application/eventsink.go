package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// SecurityEventSink is the single write path for security events. Record is
// fire-and-forget: an unreachable event store must never abort the caller's
// primary operation, so failures are logged and swallowed here.
type SecurityEventSink struct {
	repo   ports.SecurityEventRepository
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewSecurityEventSink(repo ports.SecurityEventRepository, logger *slog.Logger) *SecurityEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityEventSink{
		repo:   repo,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Record appends one event, defaulting derived fields exactly once at this
// boundary rather than in every caller.
func (s *SecurityEventSink) Record(ctx context.Context, event domain.SecurityEvent) {
	event = withEventDefaults(event, s.nowFn())
	metrics.SecurityEvents.WithLabelValues(string(event.Kind), string(event.Severity)).Inc()

	if err := s.repo.Insert(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "security event append failed",
			"module", "application.eventsink",
			"layer", "application",
			"operation", "record_event",
			"outcome", "failure",
			"event_kind", event.Kind,
			"error", err,
		)
	}
}

// Events lists recorded events for the (external) admin dashboard.
func (s *SecurityEventSink) Events(ctx context.Context, filter ports.EventFilter) ([]domain.SecurityEvent, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}

// SeverityCounts aggregates events by severity since the given instant.
func (s *SecurityEventSink) SeverityCounts(ctx context.Context, since time.Time) (map[domain.Severity]int64, error) {
	return s.repo.CountBySeverity(ctx, since)
}

// UpdateInvestigation lets a reviewer progress the investigation sub-record;
// the event itself stays immutable.
func (s *SecurityEventSink) UpdateInvestigation(ctx context.Context, eventID uuid.UUID, investigation domain.Investigation) error {
	switch investigation.Status {
	case domain.InvestigationOpen, domain.InvestigationInProgress, domain.InvestigationResolved, domain.InvestigationFalsePositive:
	default:
		return domain.ErrInvalidInput
	}
	investigation.UpdatedAt = s.nowFn()
	return s.repo.UpdateInvestigation(ctx, eventID, investigation)
}

// withEventDefaults fills everything a writer may omit: identity, timestamp,
// category, severity, risk score and response action.
func withEventDefaults(event domain.SecurityEvent, now time.Time) domain.SecurityEvent {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now
	}
	if event.Category == "" {
		event.Category = domain.CategoryOf(event.Kind)
	}
	if event.Severity == "" {
		event.Severity = domain.DefaultSeverity(event.Kind)
	}
	if event.RiskScore == 0 {
		event.RiskScore = defaultRiskScore(event)
	}
	if event.ResponseAction == "" {
		event.ResponseAction = domain.DefaultResponseAction(event.Severity)
	}
	return event
}

// defaultRiskScore derives a bounded 0-100 score from the event severity plus
// contextual factors: night-time activity and any geo flag in the details.
func defaultRiskScore(event domain.SecurityEvent) int {
	score := event.Severity.Weight()
	if hour := event.OccurredAt.Hour(); hour < 6 {
		score += 10
	}
	if _, ok := event.Details["geo_anomaly"]; ok {
		score += 15
	}
	if score > 100 {
		score = 100
	}
	return score
}
