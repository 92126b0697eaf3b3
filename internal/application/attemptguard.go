package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// DefaultMaxAttempts locks an account after this many consecutive failures.
const DefaultMaxAttempts = 5

const lockReason = "too many failed attempts"

// LoginAttemptGuard counts consecutive failed authentications per identifier
// and locks the account at the threshold. Locks are permanent until an
// explicit administrative Unlock; nothing here runs on a timer.
//
// Counter errors surface to the caller (fail closed): silently miscounting
// would let a brute-force run escape the lockout boundary.
type LoginAttemptGuard struct {
	attempts    ports.AttemptCounter
	directory   ports.AccountDirectory
	sink        *SecurityEventSink
	maxAttempts int
	logger      *slog.Logger
	nowFn       func() time.Time
}

func NewLoginAttemptGuard(attempts ports.AttemptCounter, directory ports.AccountDirectory, sink *SecurityEventSink, maxAttempts int, logger *slog.Logger) *LoginAttemptGuard {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginAttemptGuard{
		attempts:    attempts,
		directory:   directory,
		sink:        sink,
		maxAttempts: maxAttempts,
		logger:      logger,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordAttempt registers one authentication outcome. A success clears the
// counter with no further side effects. The failure that reaches the
// threshold triggers the lock exactly once: the atomic increment hands the
// threshold count to a single caller, which clears the counter and locks.
func (g *LoginAttemptGuard) RecordAttempt(ctx context.Context, identifier string, succeeded bool, origin domain.Origin) error {
	if identifier == "" {
		return fmt.Errorf("%w: identifier is required", domain.ErrInvalidInput)
	}
	origin = origin.Enrich()
	owner := g.resolveOwner(ctx, identifier)

	if succeeded {
		if err := g.attempts.Clear(ctx, identifier); err != nil {
			return fmt.Errorf("clear attempt counter: %w", err)
		}
		metrics.LoginAttempts.WithLabelValues("success").Inc()
		g.sink.Record(ctx, domain.SecurityEvent{
			OwnerID:  owner,
			Kind:     domain.EventLoginSuccess,
			Severity: domain.SeverityLow,
			Origin:   origin,
			Details:  map[string]any{"identifier": identifier},
		})
		return nil
	}

	count, err := g.attempts.Increment(ctx, identifier)
	if err != nil {
		return fmt.Errorf("increment attempt counter: %w", err)
	}
	metrics.LoginAttempts.WithLabelValues("failure").Inc()

	// Only the caller whose atomic increment lands exactly on the threshold
	// owns the lockout. A concurrent failure that observes a higher count
	// raced past it; that caller records an ordinary failure and leaves the
	// clear-and-lock to the winner.
	if int(count) != g.maxAttempts {
		g.sink.Record(ctx, domain.SecurityEvent{
			OwnerID:  owner,
			Kind:     domain.EventLoginFailed,
			Severity: domain.SeverityMedium,
			Origin:   origin,
			Details:  map[string]any{"identifier": identifier, "attempt_count": count},
		})
		return nil
	}

	if err := g.attempts.Clear(ctx, identifier); err != nil {
		return fmt.Errorf("clear attempt counter after lockout: %w", err)
	}

	if owner == nil {
		// Threshold reached for an identifier with no account behind it.
		// There is nothing to lock; the failure trail is still recorded.
		g.logger.WarnContext(ctx, "lockout threshold reached for unknown identifier",
			"module", "application.attemptguard",
			"layer", "application",
			"operation", "record_attempt",
			"outcome", "no_account",
		)
		g.sink.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventLoginFailed,
			Severity: domain.SeverityMedium,
			Origin:   origin,
			Details:  map[string]any{"identifier": identifier, "attempt_count": count, "lockout_skipped": "unknown identifier"},
		})
		return nil
	}

	if err := g.directory.Lock(ctx, *owner, lockReason, g.nowFn()); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	metrics.AccountLockouts.Inc()
	g.sink.Record(ctx, domain.SecurityEvent{
		OwnerID:  owner,
		Kind:     domain.EventAccountLocked,
		Severity: domain.SeverityHigh,
		Origin:   origin,
		Details:  map[string]any{"identifier": identifier, "reason": lockReason, "attempt_count": count},
	})
	return nil
}

// Unlock clears a lockout. It is the only way a lock ever ends.
func (g *LoginAttemptGuard) Unlock(ctx context.Context, accountID uuid.UUID, clearedBy string) error {
	if err := g.directory.Unlock(ctx, accountID); err != nil {
		return fmt.Errorf("unlock account: %w", err)
	}
	owner := accountID
	g.sink.Record(ctx, domain.SecurityEvent{
		OwnerID:  &owner,
		Kind:     domain.EventAccountUnlocked,
		Severity: domain.SeverityLow,
		Details:  map[string]any{"cleared_by": clearedBy},
	})
	return nil
}

// IsLocked reports whether the identifier's account is currently locked, for
// callers that want to short-circuit before verifying credentials.
func (g *LoginAttemptGuard) IsLocked(ctx context.Context, identifier string) (bool, error) {
	account, err := g.directory.FindByIdentifier(ctx, identifier)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve account: %w", err)
	}
	return account.IsLocked, nil
}

func (g *LoginAttemptGuard) resolveOwner(ctx context.Context, identifier string) *uuid.UUID {
	account, err := g.directory.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil
	}
	id := account.AccountID
	return &id
}
