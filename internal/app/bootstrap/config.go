package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration for M04. It merges file
// defaults and environment overrides to support both local and deployed runs.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	DatabaseURL string
	RedisURL    string
	MaxDBConns  int

	// CounterBackend selects where rate windows and attempt counters live:
	// "redis" for multi-instance deployments, "memory" for single instances.
	CounterBackend string

	SessionTTL              time.Duration
	SessionExtendOnValidate bool
	SweepInterval           time.Duration

	FailedThreshold int
	TwoFactorIssuer string

	ThreatVolumeLimit  int
	ThreatVolumeWindow time.Duration
	UnusualHoursStart  int
	UnusualHoursEnd    int
}

// configFile mirrors the YAML schema used by configs/default.yaml. It is
// intentionally separate from Config so runtime-only fields stay internal.
type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		PostgresURL string `yaml:"postgres_url"`
		RedisURL    string `yaml:"redis_url"`
	} `yaml:"dependencies"`
	Security struct {
		CounterBackend       string `yaml:"counter_backend"`
		SessionTTLHours      int    `yaml:"session_ttl_hours"`
		SessionExtend        bool   `yaml:"session_extend_on_validate"`
		SweepIntervalSeconds int    `yaml:"sweep_interval_seconds"`
		FailedThreshold      int    `yaml:"failed_threshold"`
		TwoFactorIssuer      string `yaml:"twofactor_issuer"`
		Threat               struct {
			VolumeLimit         int `yaml:"volume_limit"`
			VolumeWindowSeconds int `yaml:"volume_window_seconds"`
			UnusualHoursStart   int `yaml:"unusual_hours_start"`
			UnusualHoursEnd     int `yaml:"unusual_hours_end"`
		} `yaml:"threat"`
	} `yaml:"security"`
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:          "M04-Account-Security-Service",
		HTTPPort:           8084,
		GRPCPort:           9094,
		MaxDBConns:         20,
		CounterBackend:     "redis",
		SessionTTL:         24 * time.Hour,
		SweepInterval:      5 * time.Minute,
		FailedThreshold:    5,
		TwoFactorIssuer:    "viralforge",
		ThreatVolumeLimit:  100,
		ThreatVolumeWindow: time.Minute,
		UnusualHoursStart:  2,
		UnusualHoursEnd:    6,
	}

	raw, err := os.ReadFile(path)
	if err == nil {
		var f configFile
		if unmarshalErr := yaml.Unmarshal(raw, &f); unmarshalErr != nil {
			return Config{}, fmt.Errorf("parse config file: %w", unmarshalErr)
		}
		if f.Service.ID != "" {
			cfg.ServiceID = f.Service.ID
		}
		if f.Service.HTTPPort > 0 {
			cfg.HTTPPort = f.Service.HTTPPort
		}
		if f.Service.GRPCPort > 0 {
			cfg.GRPCPort = f.Service.GRPCPort
		}
		if f.Dependencies.PostgresURL != "" {
			cfg.DatabaseURL = f.Dependencies.PostgresURL
		}
		if f.Dependencies.RedisURL != "" {
			cfg.RedisURL = f.Dependencies.RedisURL
		}
		if f.Security.CounterBackend != "" {
			cfg.CounterBackend = f.Security.CounterBackend
		}
		if f.Security.SessionTTLHours > 0 {
			cfg.SessionTTL = time.Duration(f.Security.SessionTTLHours) * time.Hour
		}
		cfg.SessionExtendOnValidate = f.Security.SessionExtend
		if f.Security.SweepIntervalSeconds > 0 {
			cfg.SweepInterval = time.Duration(f.Security.SweepIntervalSeconds) * time.Second
		}
		if f.Security.FailedThreshold > 0 {
			cfg.FailedThreshold = f.Security.FailedThreshold
		}
		if f.Security.TwoFactorIssuer != "" {
			cfg.TwoFactorIssuer = f.Security.TwoFactorIssuer
		}
		if f.Security.Threat.VolumeLimit > 0 {
			cfg.ThreatVolumeLimit = f.Security.Threat.VolumeLimit
		}
		if f.Security.Threat.VolumeWindowSeconds > 0 {
			cfg.ThreatVolumeWindow = time.Duration(f.Security.Threat.VolumeWindowSeconds) * time.Second
		}
		if f.Security.Threat.UnusualHoursStart > 0 || f.Security.Threat.UnusualHoursEnd > 0 {
			cfg.UnusualHoursStart = f.Security.Threat.UnusualHoursStart
			cfg.UnusualHoursEnd = f.Security.Threat.UnusualHoursEnd
		}
	}

	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.CounterBackend = strings.ToLower(strings.TrimSpace(envOrDefault("COUNTER_BACKEND", cfg.CounterBackend)))
	cfg.TwoFactorIssuer = envOrDefault("TWOFACTOR_ISSUER", cfg.TwoFactorIssuer)

	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.MaxDBConns = envInt("DB_MAX_CONNS", cfg.MaxDBConns)
	cfg.FailedThreshold = envInt("FAILED_LOGIN_THRESHOLD", cfg.FailedThreshold)
	cfg.ThreatVolumeLimit = envInt("THREAT_VOLUME_LIMIT", cfg.ThreatVolumeLimit)
	cfg.UnusualHoursStart = envInt("UNUSUAL_HOURS_START", cfg.UnusualHoursStart)
	cfg.UnusualHoursEnd = envInt("UNUSUAL_HOURS_END", cfg.UnusualHoursEnd)
	cfg.SessionExtendOnValidate = envBool("SESSION_EXTEND_ON_VALIDATE", cfg.SessionExtendOnValidate)

	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_HOURS", int(cfg.SessionTTL.Hours()))) * time.Hour
	cfg.SweepInterval = time.Duration(envInt("SWEEP_INTERVAL_SECONDS", int(cfg.SweepInterval.Seconds()))) * time.Second
	cfg.ThreatVolumeWindow = time.Duration(envInt("THREAT_VOLUME_WINDOW_SECONDS", int(cfg.ThreatVolumeWindow.Seconds()))) * time.Second

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DB_URL/POSTGRES_URL")
	}
	switch cfg.CounterBackend {
	case "redis":
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("missing REDIS_URL for redis counter backend")
		}
	case "memory":
	default:
		return Config{}, fmt.Errorf("unknown counter backend %q", cfg.CounterBackend)
	}

	return cfg, nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envBool parses common boolean env forms while keeping a deterministic fallback.
func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
