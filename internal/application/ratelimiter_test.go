package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

func TestCheckAllowsUnderLimit(t *testing.T) {
	t.Parallel()

	store := &stubWindowStore{result: ports.SlideResult{Admitted: true, Count: 3}}
	limiter := NewRateLimiter(store, testLogger())
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limiter.nowFn = func() time.Time { return now }

	decision := limiter.Check(context.Background(), "aff-1", "login", 5, time.Minute)
	if !decision.Allowed {
		t.Fatalf("expected admission under the limit")
	}
	if decision.Remaining != 2 {
		t.Fatalf("expected 2 remaining, got %d", decision.Remaining)
	}
	if !decision.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected reset at window end, got %v", decision.ResetAt)
	}
}

func TestCheckDeniesAtLimit(t *testing.T) {
	t.Parallel()

	oldest := time.Date(2026, 3, 14, 11, 59, 30, 0, time.UTC)
	store := &stubWindowStore{result: ports.SlideResult{Admitted: false, Count: 5, OldestAt: oldest}}
	limiter := NewRateLimiter(store, testLogger())
	limiter.nowFn = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }

	decision := limiter.Check(context.Background(), "aff-1", "login", 5, time.Minute)
	if decision.Allowed {
		t.Fatalf("expected denial at the limit")
	}
	if decision.Remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", decision.Remaining)
	}
	if !decision.ResetAt.Equal(oldest.Add(time.Minute)) {
		t.Fatalf("expected reset when the oldest entry ages out, got %v", decision.ResetAt)
	}
}

func TestCheckFailsOpenOnStoreError(t *testing.T) {
	t.Parallel()

	store := &stubWindowStore{err: errors.New("connection refused")}
	limiter := NewRateLimiter(store, testLogger())

	decision := limiter.Check(context.Background(), "aff-1", "login", 5, time.Minute)
	if !decision.Allowed {
		t.Fatalf("store failure must admit, not deny")
	}
	if decision.Remaining != 5 {
		t.Fatalf("fail-open should report the full limit remaining, got %d", decision.Remaining)
	}
}

func TestCheckKeysByIdentifierAndAction(t *testing.T) {
	t.Parallel()

	store := &recordingWindowStore{}
	limiter := NewRateLimiter(store, testLogger())

	limiter.Check(context.Background(), "aff-1", "login", 5, time.Minute)
	limiter.Check(context.Background(), "aff-1", "payout", 5, time.Minute)

	if len(store.keys) != 2 || store.keys[0] == store.keys[1] {
		t.Fatalf("expected distinct window keys per action, got %v", store.keys)
	}
	if store.keys[0] != "aff-1:login" {
		t.Fatalf("unexpected key shape: %s", store.keys[0])
	}
}

type recordingWindowStore struct {
	keys []string
}

func (r *recordingWindowStore) Slide(_ context.Context, key string, _ time.Time, _ time.Duration, _ int) (ports.SlideResult, error) {
	r.keys = append(r.keys, key)
	return ports.SlideResult{Admitted: true, Count: 1}, nil
}
