package application

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// DefaultSessionTTL is how long a session lives from creation or extension.
const DefaultSessionTTL = 24 * time.Hour

// tokenRetryLimit bounds regeneration when an insert hits a token collision.
// With 256-bit tokens a single collision is already implausible; more than a
// couple in a row means something else is broken.
const tokenRetryLimit = 3

type SessionConfig struct {
	TTL time.Duration
	// ExtendOnValidate slides the expiry forward on every successful use.
	ExtendOnValidate bool
}

// SessionService owns the session lifecycle: issue on successful primary
// authentication, mutate on validated use, terminate by logout, admin or
// security action, or the expiry sweep. Terminal states are final.
//
// Validation fails closed: an internal error denies, because wrongly granting
// access is worse than an availability blip.
type SessionService struct {
	repo   ports.SessionRepository
	sink   *SecurityEventSink
	cfg    SessionConfig
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewSessionService(repo ports.SessionRepository, sink *SecurityEventSink, cfg SessionConfig, logger *slog.Logger) *SessionService {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		repo:   repo,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Create issues a fresh session for the owner. A token collision on insert is
// detected and regenerated, never overwritten.
func (s *SessionService) Create(ctx context.Context, ownerID uuid.UUID, origin domain.Origin) (domain.Session, error) {
	if ownerID == uuid.Nil {
		return domain.Session{}, fmt.Errorf("%w: owner is required", domain.ErrInvalidInput)
	}
	origin = origin.Enrich()
	now := s.nowFn()

	session := domain.Session{
		OwnerID:        ownerID,
		Origin:         origin,
		Fingerprint:    origin.Fingerprint(ownerID),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.cfg.TTL),
		LastActivityAt: now,
		IsActive:       true,
		Activity: []domain.ActivityEntry{{
			Action:    "session_created",
			At:        now,
			IPAddress: origin.IPAddress,
			UserAgent: origin.UserAgent,
		}},
	}

	for attempt := 0; attempt < tokenRetryLimit; attempt++ {
		token, err := newSessionToken()
		if err != nil {
			return domain.Session{}, fmt.Errorf("generate session token: %w", err)
		}
		session.Token = token

		err = s.repo.Create(ctx, session)
		if errors.Is(err, domain.ErrConflict) {
			s.logger.WarnContext(ctx, "session token collision; regenerating",
				"module", "application.sessions",
				"layer", "application",
				"operation", "create",
				"outcome", "retry",
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return domain.Session{}, fmt.Errorf("persist session: %w", err)
		}

		metrics.SessionsIssued.Inc()
		owner := ownerID
		s.sink.Record(ctx, domain.SecurityEvent{
			OwnerID:  &owner,
			Kind:     domain.EventSessionCreated,
			Severity: domain.SeverityLow,
			Origin:   origin,
			Details:  map[string]any{"expires_at": session.ExpiresAt, "device_class": origin.DeviceClass},
		})
		return session, nil
	}
	return domain.Session{}, fmt.Errorf("session token collision persisted after %d attempts: %w", tokenRetryLimit, domain.ErrConflict)
}

// Validate checks a bearer token and, on success, bumps last-activity and
// appends to the bounded activity log. A session found expired but still
// flagged active is lazily invalidated as a side effect and rejected.
func (s *SessionService) Validate(ctx context.Context, token, action string, origin domain.Origin) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, domain.ErrSessionInvalid
	}

	session, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, domain.ErrSessionInvalid
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load session: %w", err)
	}
	if !session.IsActive {
		return uuid.Nil, domain.ErrSessionInvalid
	}

	now := s.nowFn()
	if !now.Before(session.ExpiresAt) {
		s.lazyExpire(ctx, session, now)
		return uuid.Nil, domain.ErrSessionExpired
	}

	if action == "" {
		action = "session_validated"
	}
	entry := domain.ActivityEntry{
		Action:    action,
		At:        now,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
	}

	var newExpiry *time.Time
	if s.cfg.ExtendOnValidate {
		extended := now.Add(s.cfg.TTL)
		newExpiry = &extended
	}
	if err := s.repo.MarkActivity(ctx, token, now, entry, newExpiry); err != nil {
		if errors.Is(err, domain.ErrSessionInvalid) {
			// Lost the race against a concurrent invalidation or sweep.
			return uuid.Nil, domain.ErrSessionInvalid
		}
		return uuid.Nil, fmt.Errorf("mark session activity: %w", err)
	}
	return session.OwnerID, nil
}

// Invalidate terminates a session. Invalidating an already-dead or unknown
// session is a no-op, not an error, and emits nothing.
func (s *SessionService) Invalidate(ctx context.Context, token string, reason domain.InvalidationReason, by string) error {
	// Resolve the owner first so the event is attributable; the conditional
	// update below still decides whether the transition happens.
	session, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	transitioned, err := s.repo.InvalidateIfActive(ctx, token, reason, by, s.nowFn())
	if err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	if !transitioned {
		return nil
	}
	metrics.SessionsInvalidated.WithLabelValues(string(reason)).Inc()
	owner := session.OwnerID
	s.sink.Record(ctx, domain.SecurityEvent{
		OwnerID:  &owner,
		Kind:     domain.EventSessionInvalidated,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"reason": reason, "invalidated_by": by},
	})
	return nil
}

// InvalidateAllForOwner terminates every active session of the owner, e.g. on
// password change or a security incident. One aggregate event is emitted.
func (s *SessionService) InvalidateAllForOwner(ctx context.Context, ownerID uuid.UUID, reason domain.InvalidationReason) (int64, error) {
	count, err := s.repo.InvalidateAllForOwner(ctx, ownerID, reason, s.nowFn())
	if err != nil {
		return 0, fmt.Errorf("invalidate sessions for owner: %w", err)
	}
	if count > 0 {
		metrics.SessionsInvalidated.WithLabelValues(string(reason)).Add(float64(count))
		owner := ownerID
		s.sink.Record(ctx, domain.SecurityEvent{
			OwnerID:  &owner,
			Kind:     domain.EventSessionsBulkInvalidated,
			Severity: domain.SeverityMedium,
			Details:  map[string]any{"reason": reason, "session_count": count},
		})
	}
	return count, nil
}

// SweepExpired invalidates every session whose expiry has passed and which is
// still flagged active. It only issues conditional updates, so it is safe to
// run while live validations are in flight.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	count, err := s.repo.InvalidateExpired(ctx, s.nowFn())
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if count > 0 {
		metrics.SessionsInvalidated.WithLabelValues(string(domain.InvalidationExpired)).Add(float64(count))
		s.logger.InfoContext(ctx, "expired sessions swept",
			"module", "application.sessions",
			"layer", "application",
			"operation", "sweep_expired",
			"outcome", "success",
			"swept_count", count,
		)
	}
	return count, nil
}

// ListForOwner returns the owner's sessions, newest first, for the device
// overview surface.
func (s *SessionService) ListForOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByOwner(ctx, ownerID, limit, offset)
}

func (s *SessionService) lazyExpire(ctx context.Context, session domain.Session, now time.Time) {
	transitioned, err := s.repo.InvalidateIfActive(ctx, session.Token, domain.InvalidationExpired, "", now)
	if err != nil {
		s.logger.WarnContext(ctx, "lazy expiry flip failed",
			"module", "application.sessions",
			"layer", "application",
			"operation", "validate",
			"outcome", "failure",
			"error", err,
		)
		return
	}
	if transitioned {
		metrics.SessionsInvalidated.WithLabelValues(string(domain.InvalidationExpired)).Inc()
		owner := session.OwnerID
		s.sink.Record(ctx, domain.SecurityEvent{
			OwnerID:  &owner,
			Kind:     domain.EventSessionInvalidated,
			Severity: domain.SeverityLow,
			Details:  map[string]any{"reason": domain.InvalidationExpired},
		})
	}
}

// newSessionToken returns a 256-bit random opaque token.
func newSessionToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
