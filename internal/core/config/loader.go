package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"
)

var validate = validator.New()

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Retry.BaseDelayMS > cfg.Retry.MaxDelayMS {
		return nil, errors.New("retry.base_delay_ms must not exceed retry.max_delay_ms")
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 3000
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = 60000
	}
	if cfg.Retry.BackoffMultiplier == 0 {
		cfg.Retry.BackoffMultiplier = 2.0
	}
	if cfg.Retry.BreakerThreshold == 0 {
		cfg.Retry.BreakerThreshold = 5
	}
	if cfg.Retry.AttemptTimeoutMS == 0 {
		cfg.Retry.AttemptTimeoutMS = 30000
	}

	if cfg.Replay.IntervalSeconds == 0 {
		cfg.Replay.IntervalSeconds = 30
	}
	if cfg.Replay.MaxReplays == 0 {
		cfg.Replay.MaxReplays = 5
	}

	if cfg.Archive.FlushSize == 0 {
		cfg.Archive.FlushSize = 64
	}
	if cfg.Archive.FlushIntervalSeconds == 0 {
		cfg.Archive.FlushIntervalSeconds = 5
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
