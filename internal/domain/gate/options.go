package gate

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/okian/pulsegate/pkg/logger"
)

// Option applies a configuration option to the ConfirmationGate.
type Option func(*ConfirmationGate)

// WithWindow sets the confirmation countdown duration. Non-positive values
// are ignored and the default kept.
func WithWindow(d time.Duration) Option {
	return func(g *ConfirmationGate) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithSink sets the receiver for confirmed emergencies.
func WithSink(s Sink) Option {
	return func(g *ConfirmationGate) {
		g.sink = s
	}
}

// WithClock injects the time source. Tests pass a mock clock to drive the
// countdown deterministically.
func WithClock(c clock.Clock) Option {
	return func(g *ConfirmationGate) {
		if c != nil {
			g.clk = c
		}
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(g *ConfirmationGate) {
		if l != nil {
			g.lg = l
		}
	}
}
