package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
)

type sessionFixture struct {
	service *SessionService
	repo    *memorySessionRepo
	events  *memoryEventRepo
	now     time.Time
}

func newSessionFixture(cfg SessionConfig) *sessionFixture {
	repo := newMemorySessionRepo()
	events := &memoryEventRepo{}
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	service := NewSessionService(repo, newTestSink(events, now), cfg, testLogger())
	f := &sessionFixture{service: service, repo: repo, events: events, now: now}
	service.nowFn = func() time.Time { return f.now }
	return f
}

func (f *sessionFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func TestCreateIssuesOpaqueToken(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ownerID := uuid.New()

	session, err := f.service.Create(context.Background(), ownerID, domain.Origin{
		IPAddress: "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// 32 random bytes, base64url without padding.
	if len(session.Token) != 43 {
		t.Fatalf("expected 43-char token, got %d chars", len(session.Token))
	}
	if !session.ExpiresAt.Equal(f.now.Add(DefaultSessionTTL)) {
		t.Fatalf("expected 24h expiry, got %v", session.ExpiresAt)
	}
	if session.Fingerprint == "" {
		t.Fatalf("expected origin fingerprint")
	}
	if session.Origin.DeviceClass != domain.DeviceMobile {
		t.Fatalf("expected mobile device class, got %s", session.Origin.DeviceClass)
	}
	if len(session.Activity) != 1 || session.Activity[0].Action != "session_created" {
		t.Fatalf("expected initial activity entry, got %+v", session.Activity)
	}
}

func TestValidateInsideAndPastExpiry(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	ownerID := uuid.New()
	session, err := f.service.Create(ctx, ownerID, domain.Origin{IPAddress: "203.0.113.7"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	f.advance(23*time.Hour + 59*time.Minute)
	gotOwner, err := f.service.Validate(ctx, session.Token, "view_dashboard", domain.Origin{IPAddress: "203.0.113.7"})
	if err != nil {
		t.Fatalf("validate one minute before expiry: %v", err)
	}
	if gotOwner != ownerID {
		t.Fatalf("owner mismatch: %s", gotOwner)
	}

	f.advance(2 * time.Minute)
	_, err = f.service.Validate(ctx, session.Token, "view_dashboard", domain.Origin{})
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected expired error past the deadline, got %v", err)
	}

	// Lazy expiry flipped the stored record.
	stored, err := f.repo.FindByToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("find after expiry: %v", err)
	}
	if stored.IsActive {
		t.Fatalf("expected lazy invalidation to flip is_active")
	}
	if stored.InvalidationReason != domain.InvalidationExpired {
		t.Fatalf("expected expired reason, got %s", stored.InvalidationReason)
	}
}

func TestValidateRecordsActivity(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	session, err := f.service.Create(ctx, uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	f.advance(time.Hour)
	if _, err := f.service.Validate(ctx, session.Token, "update_campaign", domain.Origin{IPAddress: "198.51.100.4"}); err != nil {
		t.Fatalf("validate: %v", err)
	}

	stored, _ := f.repo.FindByToken(ctx, session.Token)
	if !stored.LastActivityAt.Equal(f.now) {
		t.Fatalf("last activity not bumped: %v", stored.LastActivityAt)
	}
	last := stored.Activity[len(stored.Activity)-1]
	if last.Action != "update_campaign" || last.IPAddress != "198.51.100.4" {
		t.Fatalf("activity entry wrong: %+v", last)
	}
}

// Each validated use must land its own activity entry in the store; a second
// validate may never overwrite what the first one recorded.
func TestRepeatedValidatesAccumulateActivity(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	session, err := f.service.Create(ctx, uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for _, action := range []string{"view_dashboard", "update_campaign"} {
		f.advance(time.Minute)
		if _, err := f.service.Validate(ctx, session.Token, action, domain.Origin{}); err != nil {
			t.Fatalf("validate %s: %v", action, err)
		}
	}

	stored, _ := f.repo.FindByToken(ctx, session.Token)
	if len(stored.Activity) != 3 {
		t.Fatalf("expected creation plus both validations retained, got %d entries", len(stored.Activity))
	}
	if stored.Activity[1].Action != "view_dashboard" || stored.Activity[2].Action != "update_campaign" {
		t.Fatalf("activity entries lost or reordered: %+v", stored.Activity)
	}
}

func TestValidateExtendsExpiryWhenConfigured(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{TTL: time.Hour, ExtendOnValidate: true})
	ctx := context.Background()
	session, err := f.service.Create(ctx, uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	f.advance(30 * time.Minute)
	if _, err := f.service.Validate(ctx, session.Token, "", domain.Origin{}); err != nil {
		t.Fatalf("validate: %v", err)
	}
	stored, _ := f.repo.FindByToken(ctx, session.Token)
	if !stored.ExpiresAt.Equal(f.now.Add(time.Hour)) {
		t.Fatalf("expected sliding expiry, got %v", stored.ExpiresAt)
	}
}

func TestValidateRejectsUnknownAndEmptyTokens(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()

	if _, err := f.service.Validate(ctx, "", "", domain.Origin{}); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("empty token: %v", err)
	}
	if _, err := f.service.Validate(ctx, "no-such-token", "", domain.Origin{}); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("unknown token: %v", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	ownerID := uuid.New()
	session, err := f.service.Create(ctx, ownerID, domain.Origin{})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := f.service.Invalidate(ctx, session.Token, domain.InvalidationUserLogout, "self"); err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	if err := f.service.Invalidate(ctx, session.Token, domain.InvalidationAdmin, "ops"); err != nil {
		t.Fatalf("second invalidate must be a no-op, got %v", err)
	}

	stored, _ := f.repo.FindByToken(ctx, session.Token)
	if stored.InvalidationReason != domain.InvalidationUserLogout || stored.InvalidatedBy != "self" {
		t.Fatalf("terminal state overwritten: %+v", stored)
	}
	if n := f.events.countOfKind(domain.EventSessionInvalidated); n != 1 {
		t.Fatalf("expected one invalidation event, got %d", n)
	}
	event, _ := f.events.lastOfKind(domain.EventSessionInvalidated)
	if event.OwnerID == nil || *event.OwnerID != ownerID {
		t.Fatalf("invalidation event must be attributed to the owner, got %v", event.OwnerID)
	}
	if err := f.service.Invalidate(ctx, "no-such-token", domain.InvalidationUserLogout, "self"); err != nil {
		t.Fatalf("unknown token must be a no-op: %v", err)
	}

	if _, err := f.service.Validate(ctx, session.Token, "", domain.Origin{}); !errors.Is(err, domain.ErrSessionInvalid) {
		t.Fatalf("dead session must stay dead: %v", err)
	}
}

func TestInvalidateAllForOwner(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	owner := uuid.New()
	other := uuid.New()
	for i := 0; i < 3; i++ {
		if _, err := f.service.Create(ctx, owner, domain.Origin{}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	bystander, err := f.service.Create(ctx, other, domain.Origin{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	count, err := f.service.InvalidateAllForOwner(ctx, owner, domain.InvalidationPasswordChange)
	if err != nil {
		t.Fatalf("bulk invalidate: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 invalidated, got %d", count)
	}
	if _, err := f.service.Validate(ctx, bystander.Token, "", domain.Origin{}); err != nil {
		t.Fatalf("other owner's session must survive: %v", err)
	}
	event, ok := f.events.lastOfKind(domain.EventSessionsBulkInvalidated)
	if !ok {
		t.Fatalf("expected one aggregate event")
	}
	if event.Details["session_count"] != int64(3) {
		t.Fatalf("aggregate count wrong: %v", event.Details["session_count"])
	}
}

func TestSweepExpiredOnlyTouchesExpired(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	ctx := context.Background()
	stale, err := f.service.Create(ctx, uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.advance(12 * time.Hour)
	fresh, err := f.service.Create(ctx, uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	f.advance(13 * time.Hour) // stale is past 24h, fresh is not
	count, err := f.service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 swept, got %d", count)
	}
	staleStored, _ := f.repo.FindByToken(ctx, stale.Token)
	if staleStored.IsActive {
		t.Fatalf("stale session survived the sweep")
	}
	if _, err := f.service.Validate(ctx, fresh.Token, "", domain.Origin{}); err != nil {
		t.Fatalf("fresh session must survive the sweep: %v", err)
	}
}

func TestCreateRegeneratesOnTokenCollision(t *testing.T) {
	t.Parallel()

	f := newSessionFixture(SessionConfig{})
	repo := &collidingSessionRepo{memorySessionRepo: f.repo, conflicts: 2}
	f.service.repo = repo

	session, err := f.service.Create(context.Background(), uuid.New(), domain.Origin{})
	if err != nil {
		t.Fatalf("create should retry through collisions: %v", err)
	}
	if repo.creates != 3 {
		t.Fatalf("expected 3 insert attempts, got %d", repo.creates)
	}
	if session.Token == "" {
		t.Fatalf("expected a token after retries")
	}
}

type collidingSessionRepo struct {
	*memorySessionRepo
	conflicts int
	creates   int
}

func (r *collidingSessionRepo) Create(ctx context.Context, session domain.Session) error {
	r.creates++
	if r.creates <= r.conflicts {
		return domain.ErrConflict
	}
	return r.memorySessionRepo.Create(ctx, session)
}
