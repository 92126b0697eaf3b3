package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

// stripeCount spreads keys over independent locks so concurrent requests for
// different identifiers never serialize behind one global mutex. Contention is
// bounded to keys that hash to the same stripe.
const stripeCount = 64

func stripeFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % stripeCount
}

type windowStripe struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// MemoryRateWindowStore is the single-instance counterpart of the Redis store:
// one in-process timestamp log per key, striped across per-stripe locks.
// Windows do not survive a restart, which the admission contract explicitly
// allows.
type MemoryRateWindowStore struct {
	stripes [stripeCount]windowStripe
}

func NewMemoryRateWindowStore() *MemoryRateWindowStore {
	s := &MemoryRateWindowStore{}
	for i := range s.stripes {
		s.stripes[i].windows = make(map[string][]time.Time)
	}
	return s
}

func (s *MemoryRateWindowStore) Slide(_ context.Context, key string, now time.Time, window time.Duration, limit int) (ports.SlideResult, error) {
	stripe := &s.stripes[stripeFor(key)]
	stripe.mu.Lock()
	defer stripe.mu.Unlock()

	cutoff := now.Add(-window)
	entries := stripe.windows[key]
	kept := entries[:0]
	for _, at := range entries {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	result := ports.SlideResult{Count: len(kept)}
	if len(kept) < limit {
		kept = append(kept, now)
		result.Admitted = true
		result.Count = len(kept)
	}
	if len(kept) > 0 {
		result.OldestAt = kept[0]
	}

	if len(kept) == 0 {
		delete(stripe.windows, key)
	} else {
		stripe.windows[key] = kept
	}
	return result, nil
}

type countStripe struct {
	mu     sync.Mutex
	counts map[string]int64
}

// MemoryAttemptStore is the in-process attempt counter for single-instance
// deployments and tests, striped the same way as the window store.
type MemoryAttemptStore struct {
	stripes [stripeCount]countStripe
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	s := &MemoryAttemptStore{}
	for i := range s.stripes {
		s.stripes[i].counts = make(map[string]int64)
	}
	return s
}

func (s *MemoryAttemptStore) Increment(_ context.Context, key string) (int64, error) {
	stripe := &s.stripes[stripeFor(key)]
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	stripe.counts[key]++
	return stripe.counts[key], nil
}

func (s *MemoryAttemptStore) Clear(_ context.Context, key string) error {
	stripe := &s.stripes[stripeFor(key)]
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	delete(stripe.counts, key)
	return nil
}
