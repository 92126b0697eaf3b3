package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-account-security-service/internal/ports"
)

type ThreatConfig struct {
	// VolumeLimit/VolumeWindow is the high-volume threshold checked against
	// the rate limiter on every assessment.
	VolumeLimit  int
	VolumeWindow time.Duration
	// UnusualHoursStart/End bound the local hours flagged as unusual. The band
	// wraps midnight when start > end.
	UnusualHoursStart int
	UnusualHoursEnd   int

	HistoryRetention  time.Duration
	HistoryMaxEntries int
}

func (c ThreatConfig) withDefaults() ThreatConfig {
	if c.VolumeLimit <= 0 {
		c.VolumeLimit = 100
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = time.Minute
	}
	if c.UnusualHoursStart == 0 && c.UnusualHoursEnd == 0 {
		c.UnusualHoursStart, c.UnusualHoursEnd = 2, 6
	}
	if c.HistoryRetention <= 0 {
		c.HistoryRetention = 24 * time.Hour
	}
	if c.HistoryMaxEntries <= 0 {
		c.HistoryMaxEntries = 256
	}
	return c
}

// Assessment is the union of all detector findings plus the severity-weighted
// risk score, clamped to [0,100].
type Assessment struct {
	Threats   []domain.Threat
	RiskScore int
}

type actionRecord struct {
	Action string
	At     time.Time
}

// ThreatScorer runs independent heuristics over an authenticated action:
// request volume, time of day, and a pluggable geography detector. It fails
// open; a broken detector degrades to an empty finding, never a denial.
//
// A bounded 24h per-owner action history is retained for future velocity
// detectors; the base score does not read it.
type ThreatScorer struct {
	limiter *RateLimiter
	geo     ports.GeoAnomalyDetector
	sink    *SecurityEventSink
	cfg     ThreatConfig
	logger  *slog.Logger
	nowFn   func() time.Time

	mu      sync.Mutex
	history map[string][]actionRecord
}

func NewThreatScorer(limiter *RateLimiter, geo ports.GeoAnomalyDetector, sink *SecurityEventSink, cfg ThreatConfig, logger *slog.Logger) *ThreatScorer {
	if geo == nil {
		geo = NopGeoDetector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ThreatScorer{
		limiter: limiter,
		geo:     geo,
		sink:    sink,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		nowFn:   func() time.Time { return time.Now().UTC() },
		history: make(map[string][]actionRecord),
	}
}

// Assess evaluates every detector independently and unions the findings. Any
// non-empty threat list is recorded as a single threat-detected event.
func (t *ThreatScorer) Assess(ctx context.Context, ownerID uuid.UUID, action string, origin domain.Origin) Assessment {
	now := t.nowFn()
	owner := ownerID.String()
	t.remember(owner, action, now)

	var threats []domain.Threat

	decision := t.limiter.Check(ctx, owner, action, t.cfg.VolumeLimit, t.cfg.VolumeWindow)
	if !decision.Allowed {
		threats = append(threats, domain.Threat{
			Type:     "rate limit exceeded",
			Severity: domain.SeverityMedium,
			Detail:   fmt.Sprintf("more than %d requests within %s", t.cfg.VolumeLimit, t.cfg.VolumeWindow),
		})
	}

	if t.unusualHour(now.Hour()) {
		threats = append(threats, domain.Threat{
			Type:     "unusual activity hours",
			Severity: domain.SeverityLow,
			Detail:   fmt.Sprintf("activity at %02d:00 local time", now.Hour()),
		})
	}

	geoThreat, err := t.geo.Detect(ctx, owner, origin.IPAddress)
	if err != nil {
		t.logger.WarnContext(ctx, "geo anomaly detector failed; skipping",
			"module", "application.threatscorer",
			"layer", "application",
			"operation", "assess",
			"outcome", "fail_open",
			"error", err,
		)
	} else if geoThreat != nil {
		threats = append(threats, *geoThreat)
	}

	score := 0
	for _, threat := range threats {
		score += threat.Severity.Weight()
	}
	if score > 100 {
		score = 100
	}
	metrics.ThreatRiskScore.Observe(float64(score))

	if len(threats) > 0 {
		id := ownerID
		t.sink.Record(ctx, domain.SecurityEvent{
			OwnerID: &id,
			Kind:    domain.EventThreatDetected,
			Origin:  origin,
			Details: map[string]any{
				"action":     action,
				"threats":    threats,
				"risk_score": score,
			},
		})
	}
	return Assessment{Threats: threats, RiskScore: score}
}

func (t *ThreatScorer) unusualHour(hour int) bool {
	start, end := t.cfg.UnusualHoursStart, t.cfg.UnusualHoursEnd
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

func (t *ThreatScorer) remember(owner, action string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	records := t.history[owner]
	cutoff := now.Add(-t.cfg.HistoryRetention)
	pruned := records[:0]
	for _, record := range records {
		if record.At.After(cutoff) {
			pruned = append(pruned, record)
		}
	}
	pruned = append(pruned, actionRecord{Action: action, At: now})
	if len(pruned) > t.cfg.HistoryMaxEntries {
		pruned = pruned[len(pruned)-t.cfg.HistoryMaxEntries:]
	}
	t.history[owner] = pruned
}

// NopGeoDetector is the default geography collaborator: no geo-IP feed, no
// findings.
type NopGeoDetector struct{}

func (NopGeoDetector) Detect(context.Context, string, string) (*domain.Threat, error) {
	return nil, nil
}
