package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/application"
)

// Sweeper periodically invalidates sessions whose expiry has passed. Lazy
// expiry already rejects them on use; the sweep keeps the table honest for
// sessions that are simply never presented again.
type Sweeper struct {
	logger   *slog.Logger
	sessions *application.SessionService
	interval time.Duration
}

func NewSweeper(logger *slog.Logger, sessions *application.SessionService, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{logger: logger, sessions: sessions, interval: interval}
}

// Run executes the periodic sweep loop until context cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.sessions.SweepExpired(ctx); err != nil {
			s.logger.ErrorContext(ctx, "sweep iteration failed",
				"module", "maintenance.sweeper",
				"layer", "adapter",
				"operation", "sweep",
				"outcome", "failure",
				"error", err,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
