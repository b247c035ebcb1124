package config

import (
	"time"

	"github.com/vietddude/bulwark/internal/fetch"
	"github.com/vietddude/bulwark/internal/infra/audit"
	"github.com/vietddude/bulwark/internal/infra/dlq"
	"github.com/vietddude/bulwark/internal/infra/storage/postgres"
	"github.com/vietddude/bulwark/internal/retry/coordinator"
)

// AppConfig represents the top-level configuration. Redis, database and
// audit sections are optional; leaving their locations empty disables
// the dead letter queue, the attempt archive and the audit trail.
type AppConfig struct {
	Server   ServerConfig    `yaml:"server"`
	Retry    RetryConfig     `yaml:"retry"`
	Fetch    fetch.Config    `yaml:"fetch"`
	Replay   ReplayConfig    `yaml:"replay"`
	Redis    dlq.Config      `yaml:"redis"`
	Database postgres.Config `yaml:"database"`
	Archive  ArchiveConfig   `yaml:"archive"`
	Audit    audit.Config    `yaml:"audit"`
	Logging  LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" validate:"gte=0,lte=65535"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// RetryConfig tunes the retry engine. Delay fields are milliseconds.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts"       validate:"gte=1,lte=20"`
	BaseDelayMS       int     `yaml:"base_delay_ms"      validate:"gte=1"`
	MaxDelayMS        int     `yaml:"max_delay_ms"       validate:"gte=1000"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" validate:"gte=1"`
	DisableJitter     bool    `yaml:"disable_jitter"`
	BreakerThreshold  int     `yaml:"breaker_threshold"  validate:"gte=1"`
	AttemptTimeoutMS  int     `yaml:"attempt_timeout_ms" validate:"gte=0"`
}

// Coordinator converts the YAML-facing fields into an engine config.
func (r RetryConfig) Coordinator() coordinator.Config {
	return coordinator.Config{
		MaxAttempts:       r.MaxAttempts,
		BaseDelay:         time.Duration(r.BaseDelayMS) * time.Millisecond,
		MaxDelay:          time.Duration(r.MaxDelayMS) * time.Millisecond,
		BackoffMultiplier: r.BackoffMultiplier,
		JitterEnabled:     !r.DisableJitter,
		BreakerThreshold:  r.BreakerThreshold,
		AttemptTimeout:    time.Duration(r.AttemptTimeoutMS) * time.Millisecond,
	}
}

// ReplayConfig tunes the dead letter replay worker.
type ReplayConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" validate:"gte=1"`
	MaxReplays      int `yaml:"max_replays"      validate:"gte=1"`
}

// Worker converts the YAML-facing fields into a replay worker config.
func (r ReplayConfig) Worker() fetch.ReplayConfig {
	return fetch.ReplayConfig{
		Interval:   time.Duration(r.IntervalSeconds) * time.Second,
		MaxReplays: r.MaxReplays,
	}
}

// ArchiveConfig tunes the attempt archive. RetentionDays 0 keeps
// archived attempts forever.
type ArchiveConfig struct {
	FlushSize            int `yaml:"flush_size"             validate:"gte=1"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds" validate:"gte=1"`
	RetentionDays        int `yaml:"retention_days"         validate:"gte=0"`
}
