package application

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memoryEventRepo collects recorded events for assertions.
type memoryEventRepo struct {
	mu        sync.Mutex
	events    []domain.SecurityEvent
	insertErr error
}

func (r *memoryEventRepo) Insert(_ context.Context, event domain.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.events = append(r.events, event)
	return nil
}

func (r *memoryEventRepo) List(_ context.Context, filter ports.EventFilter) ([]domain.SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SecurityEvent
	for _, event := range r.events {
		if filter.OwnerID != nil && (event.OwnerID == nil || *event.OwnerID != *filter.OwnerID) {
			continue
		}
		if filter.Category != "" && event.Category != filter.Category {
			continue
		}
		if filter.Severity != "" && event.Severity != filter.Severity {
			continue
		}
		if filter.Since != nil && event.OccurredAt.Before(*filter.Since) {
			continue
		}
		out = append(out, event)
	}
	if filter.Offset > 0 && filter.Offset < len(out) {
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memoryEventRepo) CountBySeverity(_ context.Context, since time.Time) (map[domain.Severity]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[domain.Severity]int64)
	for _, event := range r.events {
		if event.OccurredAt.Before(since) {
			continue
		}
		counts[event.Severity]++
	}
	return counts, nil
}

func (r *memoryEventRepo) UpdateInvestigation(_ context.Context, eventID uuid.UUID, investigation domain.Investigation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.events {
		if r.events[i].ID == eventID {
			inv := investigation
			r.events[i].Investigation = &inv
			return nil
		}
	}
	return domain.ErrNotFound
}

func (r *memoryEventRepo) recorded() []domain.SecurityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.SecurityEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *memoryEventRepo) lastOfKind(kind domain.EventKind) (domain.SecurityEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return domain.SecurityEvent{}, false
}

func (r *memoryEventRepo) countOfKind(kind domain.EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, event := range r.events {
		if event.Kind == kind {
			n++
		}
	}
	return n
}

// memorySessionRepo mirrors the conditional-update contract of the Postgres
// adapter against a plain map.
type memorySessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]domain.Session)}
}

func (r *memorySessionRepo) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.Token]; exists {
		return domain.ErrConflict
	}
	r.sessions[session.Token] = session
	return nil
}

func (r *memorySessionRepo) FindByToken(_ context.Context, token string) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[token]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return session, nil
}

func (r *memorySessionRepo) MarkActivity(_ context.Context, token string, at time.Time, entry domain.ActivityEntry, newExpiry *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[token]
	if !ok || !session.IsActive {
		return domain.ErrSessionInvalid
	}
	session.LastActivityAt = at
	session.AppendActivity(entry)
	if newExpiry != nil {
		session.ExpiresAt = *newExpiry
	}
	r.sessions[token] = session
	return nil
}

func (r *memorySessionRepo) InvalidateIfActive(_ context.Context, token string, reason domain.InvalidationReason, by string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[token]
	if !ok || !session.IsActive {
		return false, nil
	}
	r.invalidateLocked(&session, reason, by, at)
	r.sessions[token] = session
	return true, nil
}

func (r *memorySessionRepo) InvalidateAllForOwner(_ context.Context, ownerID uuid.UUID, reason domain.InvalidationReason, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for token, session := range r.sessions {
		if session.OwnerID != ownerID || !session.IsActive {
			continue
		}
		r.invalidateLocked(&session, reason, "", at)
		r.sessions[token] = session
		count++
	}
	return count, nil
}

func (r *memorySessionRepo) InvalidateExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for token, session := range r.sessions {
		if !session.IsActive || now.Before(session.ExpiresAt) {
			continue
		}
		r.invalidateLocked(&session, domain.InvalidationExpired, "", now)
		r.sessions[token] = session
		count++
	}
	return count, nil
}

func (r *memorySessionRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, limit, offset int) ([]domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Session
	for _, session := range r.sessions {
		if session.OwnerID == ownerID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memorySessionRepo) invalidateLocked(session *domain.Session, reason domain.InvalidationReason, by string, at time.Time) {
	session.IsActive = false
	when := at
	session.InvalidatedAt = &when
	session.InvalidatedBy = by
	session.InvalidationReason = reason
}

// memoryDirectory is an in-memory account directory with atomic backup-code
// consumption.
type memoryDirectory struct {
	mu          sync.Mutex
	accounts    map[uuid.UUID]domain.Account
	credentials map[uuid.UUID]domain.TwoFactorCredential
	backupCodes map[uuid.UUID]map[string]bool
}

func newMemoryDirectory() *memoryDirectory {
	return &memoryDirectory{
		accounts:    make(map[uuid.UUID]domain.Account),
		credentials: make(map[uuid.UUID]domain.TwoFactorCredential),
		backupCodes: make(map[uuid.UUID]map[string]bool),
	}
}

func (d *memoryDirectory) addAccount(identifier string) uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := uuid.New()
	d.accounts[id] = domain.Account{AccountID: id, Identifier: identifier}
	return id
}

func (d *memoryDirectory) FindByIdentifier(_ context.Context, identifier string) (domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, account := range d.accounts {
		if account.Identifier == identifier {
			return account, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

func (d *memoryDirectory) FindByID(_ context.Context, accountID uuid.UUID) (domain.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[accountID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func (d *memoryDirectory) Lock(_ context.Context, accountID uuid.UUID, reason string, lockedAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.IsLocked = true
	at := lockedAt
	account.LockedAt = &at
	account.LockReason = reason
	d.accounts[accountID] = account
	return nil
}

func (d *memoryDirectory) Unlock(_ context.Context, accountID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	account.IsLocked = false
	account.LockedAt = nil
	account.LockReason = ""
	d.accounts[accountID] = account
	return nil
}

func (d *memoryDirectory) GetTwoFactorCredential(_ context.Context, accountID uuid.UUID) (domain.TwoFactorCredential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	credential, ok := d.credentials[accountID]
	if !ok {
		return domain.TwoFactorCredential{}, domain.ErrNotFound
	}
	return credential, nil
}

func (d *memoryDirectory) SetTwoFactorCredential(_ context.Context, accountID uuid.UUID, secret string, enabled bool, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials[accountID] = domain.TwoFactorCredential{Secret: secret, Enabled: enabled}
	return nil
}

func (d *memoryDirectory) ReplaceBackupCodes(_ context.Context, accountID uuid.UUID, codeDigests []string, _ time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := make(map[string]bool, len(codeDigests))
	for _, digest := range codeDigests {
		set[digest] = true
	}
	d.backupCodes[accountID] = set
	return nil
}

func (d *memoryDirectory) ConsumeBackupCode(_ context.Context, accountID uuid.UUID, codeDigest string, _ time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.backupCodes[accountID]
	if !set[codeDigest] {
		return false, nil
	}
	set[codeDigest] = false
	return true, nil
}

// memoryAttempts is a map-backed attempt counter with an injectable failure.
type memoryAttempts struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{counts: make(map[string]int64)}
}

func (a *memoryAttempts) Increment(_ context.Context, key string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	a.counts[key]++
	return a.counts[key], nil
}

func (a *memoryAttempts) Clear(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	delete(a.counts, key)
	return nil
}

// stubWindowStore returns a scripted slide result.
type stubWindowStore struct {
	result ports.SlideResult
	err    error
	calls  int
}

func (s *stubWindowStore) Slide(context.Context, string, time.Time, time.Duration, int) (ports.SlideResult, error) {
	s.calls++
	if s.err != nil {
		return ports.SlideResult{}, s.err
	}
	return s.result, nil
}

// stubGeoDetector returns a scripted finding.
type stubGeoDetector struct {
	threat *domain.Threat
	err    error
}

func (s stubGeoDetector) Detect(context.Context, string, string) (*domain.Threat, error) {
	return s.threat, s.err
}

func newTestSink(repo *memoryEventRepo, now time.Time) *SecurityEventSink {
	sink := NewSecurityEventSink(repo, testLogger())
	sink.nowFn = func() time.Time { return now }
	return sink
}
