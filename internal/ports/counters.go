package ports

import (
	"context"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

// SlideResult is the outcome of one sliding-window admission check.
type SlideResult struct {
	Admitted bool
	// Count is the number of requests inside the window after this call,
	// including the one just admitted.
	Count int
	// OldestAt is the timestamp of the oldest retained entry; the window
	// resets at OldestAt + window. Zero when the window is empty.
	OldestAt time.Time
}

// RateWindowStore holds ephemeral sliding-window request logs keyed by
// identifier:action. Slide must trim, count and append atomically per key;
// state is explicitly allowed to vanish on process restart. Backed by an
// in-process map for single instances or Redis for multi-instance
// deployments, chosen at composition time.
type RateWindowStore interface {
	Slide(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (SlideResult, error)
}

// AttemptCounter tracks consecutive failed login attempts per identifier.
// Increment-and-read must be atomic per key so two concurrent failures cannot
// both observe the pre-lockout count.
type AttemptCounter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Clear(ctx context.Context, key string) error
}

// GeoAnomalyDetector is the pluggable geography collaborator. Detect returns
// nil when nothing is suspicious; without a geo-IP feed the no-op
// implementation always does.
type GeoAnomalyDetector interface {
	Detect(ctx context.Context, ownerID string, ipAddress string) (*domain.Threat, error)
}
