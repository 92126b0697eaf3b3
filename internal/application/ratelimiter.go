package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// RateDecision is the structured outcome of an admission check. Rejection is
// data, not an error; the caller decides how to respond.
type RateDecision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimiter applies sliding-window-log admission control keyed by
// (identifier, action). It fails open: when the counting store is
// unreachable, availability of the gated action wins over strict limiting.
type RateLimiter struct {
	store  ports.RateWindowStore
	logger *slog.Logger
	nowFn  func() time.Time
}

func NewRateLimiter(store ports.RateWindowStore, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		store:  store,
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// Check admits the request iff fewer than limit requests were admitted inside
// the trailing window. Rejected requests do not consume window capacity.
func (l *RateLimiter) Check(ctx context.Context, identifier, action string, limit int, window time.Duration) RateDecision {
	now := l.nowFn()
	res, err := l.store.Slide(ctx, identifier+":"+action, now, window, limit)
	if err != nil {
		l.logger.WarnContext(ctx, "rate window store unreachable; admitting",
			"module", "application.ratelimiter",
			"layer", "application",
			"operation", "check",
			"outcome", "fail_open",
			"action", action,
			"error", err,
		)
		metrics.RateLimitDecisions.WithLabelValues(action, "fail_open").Inc()
		return RateDecision{Allowed: true, Remaining: limit, ResetAt: now.Add(window)}
	}

	resetAt := now.Add(window)
	if !res.OldestAt.IsZero() {
		resetAt = res.OldestAt.Add(window)
	}
	remaining := limit - res.Count
	if remaining < 0 {
		remaining = 0
	}

	if !res.Admitted {
		metrics.RateLimitDecisions.WithLabelValues(action, "limited").Inc()
		return RateDecision{Allowed: false, Remaining: remaining, ResetAt: resetAt}
	}
	metrics.RateLimitDecisions.WithLabelValues(action, "allowed").Inc()
	return RateDecision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}
