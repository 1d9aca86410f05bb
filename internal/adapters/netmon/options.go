package netmon

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulsegate/pkg/logger"
)

// Option applies a configuration option to the Monitor.
type Option func(*Monitor)

// WithProber replaces the connectivity probe.
func WithProber(p Prober) Option {
	return func(m *Monitor) {
		if p != nil {
			m.probe = p
		}
	}
}

// WithTarget sets the address the default TCP probe dials.
func WithTarget(target string) Option {
	return func(m *Monitor) {
		if target != "" {
			m.probe = dialProber(target)
		}
	}
}

// WithInterval sets the probe period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithClock injects the time source for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clk = c
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.lg = l
		}
	}
}
