package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if PULSEGATE_CONFIG is set
//  3. env (prefix PULSEGATE_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("PULSEGATE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: PULSEGATE_ADDR, PULSEGATE_MAX_ATTEMPTS, ...
	// Map env keys like PULSEGATE_MAX_ATTEMPTS -> max_attempts (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("PULSEGATE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "pulsegate_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects malformed configuration at the boundary so bad thresholds
// never reach the detector or the delivery queue.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.HighThresholdBPM <= 0 || c.LowThresholdBPM <= 0:
		return fmt.Errorf("%w: thresholds must be positive", ErrInvalidConfig)
	case c.HighThresholdBPM <= c.LowThresholdBPM:
		return fmt.Errorf("%w: high threshold must exceed low threshold", ErrInvalidConfig)
	case c.RapidIncreaseDeltaBPM <= 0 || c.ExtremeSpikeDeltaBPM <= 0:
		return fmt.Errorf("%w: pattern deltas must be positive", ErrInvalidConfig)
	case c.RapidIncreaseWindowSec <= 0 || c.ExtremeSpikeWindowSec <= 0:
		return fmt.Errorf("%w: pattern windows must be positive", ErrInvalidConfig)
	case c.ConfirmationWindowSec <= 0:
		return fmt.Errorf("%w: confirmation window must be positive", ErrInvalidConfig)
	case c.CycleIntervalSec <= 0 || c.BatchSize <= 0:
		return fmt.Errorf("%w: cycle interval and batch size must be positive", ErrInvalidConfig)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1", ErrInvalidConfig)
	case c.RetryBaseSec <= 0 || c.RetryMaxSec < c.RetryBaseSec:
		return fmt.Errorf("%w: retry interval bounds are inconsistent", ErrInvalidConfig)
	case c.SendTimeoutSec <= 0:
		return fmt.Errorf("%w: send timeout must be positive", ErrInvalidConfig)
	}

	for i, contact := range c.Contacts {
		if contact.ID == "" || contact.Address == "" {
			return fmt.Errorf("%w: contact %d missing id or address", ErrInvalidConfig, i)
		}
	}
	return nil
}
