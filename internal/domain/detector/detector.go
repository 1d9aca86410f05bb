// Package detector evaluates heart-rate samples against threshold and
// pattern rules over a rolling window.
package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/metrics"
)

// Default rule configuration constants.
const (
	defaultHighThresholdBPM      = 150
	defaultLowThresholdBPM       = 40
	defaultRapidIncreaseDeltaBPM = 30
	defaultRapidIncreaseWindow   = 10 * time.Minute
	defaultExtremeSpikeDeltaBPM  = 40
	defaultExtremeSpikeWindow    = 5 * time.Minute

	// minRetention floors the rolling window span regardless of rule config.
	minRetention = 10 * time.Minute
)

// Rules holds the mutable rule configuration. Reads and writes are
// last-write-wins; a change takes effect on the next evaluation.
type Rules struct {
	HighThresholdBPM      int
	LowThresholdBPM       int
	RapidIncreaseDeltaBPM int
	RapidIncreaseWindow   time.Duration
	ExtremeSpikeDeltaBPM  int
	ExtremeSpikeWindow    time.Duration

	HighThresholdEnabled bool
	LowThresholdEnabled  bool
	RapidIncreaseEnabled bool
	ExtremeSpikeEnabled  bool
}

// DefaultRules returns the rule set used when no configuration is supplied.
func DefaultRules() Rules {
	return Rules{
		HighThresholdBPM:      defaultHighThresholdBPM,
		LowThresholdBPM:       defaultLowThresholdBPM,
		RapidIncreaseDeltaBPM: defaultRapidIncreaseDeltaBPM,
		RapidIncreaseWindow:   defaultRapidIncreaseWindow,
		ExtremeSpikeDeltaBPM:  defaultExtremeSpikeDeltaBPM,
		ExtremeSpikeWindow:    defaultExtremeSpikeWindow,
		HighThresholdEnabled:  true,
		LowThresholdEnabled:   true,
		RapidIncreaseEnabled:  true,
		ExtremeSpikeEnabled:   true,
	}
}

// Validate rejects malformed rule sets at the configuration boundary so they
// never reach evaluation.
func (r Rules) Validate() error {
	switch {
	case r.HighThresholdBPM <= 0 || r.LowThresholdBPM <= 0:
		return fmt.Errorf("%w: thresholds must be positive", ErrInvalidRules)
	case r.HighThresholdBPM <= r.LowThresholdBPM:
		return fmt.Errorf("%w: high threshold must exceed low threshold", ErrInvalidRules)
	case r.RapidIncreaseDeltaBPM <= 0 || r.ExtremeSpikeDeltaBPM <= 0:
		return fmt.Errorf("%w: pattern deltas must be positive", ErrInvalidRules)
	case r.RapidIncreaseWindow <= 0 || r.ExtremeSpikeWindow <= 0:
		return fmt.Errorf("%w: pattern windows must be positive", ErrInvalidRules)
	}
	return nil
}

// retention is the rolling window span implied by the rule windows.
func (r Rules) retention() time.Duration {
	span := minRetention
	if r.RapidIncreaseWindow > span {
		span = r.RapidIncreaseWindow
	}
	if r.ExtremeSpikeWindow > span {
		span = r.ExtremeSpikeWindow
	}
	return span
}

// Detector consumes samples and emits at most one detection event per sample.
type Detector interface {
	// Ingest appends the sample to the rolling window and evaluates the rules.
	// Returns nil when no enabled rule fires.
	Ingest(ctx context.Context, sample model.HeartRateSample) *model.DetectionEvent

	// Rules returns a snapshot of the current rule configuration.
	Rules() Rules

	// SetRules replaces the rule configuration after validating it.
	SetRules(rules Rules) error
}

// RollingDetector implements Detector over an in-memory rolling window.
// Single-writer: samples arrive on one logical thread of control; only the
// rule config is shared with other goroutines and guarded accordingly.
type RollingDetector struct {
	window *rollingWindow

	rulesMu sync.RWMutex
	rules   Rules
}

// New creates a detector with configuration options.
func New(opts ...Option) *RollingDetector {
	d := &RollingDetector{
		window: newRollingWindow(),
		rules:  DefaultRules(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Rules returns a snapshot of the current rule configuration.
func (d *RollingDetector) Rules() Rules {
	d.rulesMu.RLock()
	defer d.rulesMu.RUnlock()
	return d.rules
}

// SetRules replaces the rule configuration. Takes effect on the next
// evaluation; last write wins.
func (d *RollingDetector) SetRules(rules Rules) error {
	if err := rules.Validate(); err != nil {
		return err
	}
	d.rulesMu.Lock()
	d.rules = rules
	d.rulesMu.Unlock()
	return nil
}

// Ingest appends the sample, evicts stale entries, and evaluates rules in
// fixed priority order: ExtremeSpike > RapidIncrease > HighThreshold >
// LowThreshold. Only the highest-priority firing rule produces an event, so
// one reading never raises duplicate alerts.
func (d *RollingDetector) Ingest(_ context.Context, sample model.HeartRateSample) *model.DetectionEvent {
	rules := d.Rules()

	d.window.push(sample)
	d.window.evictOlderThan(d.window.newest().Add(-rules.retention()))
	metrics.RecordSampleIngested()

	if ev := d.evalSpike(rules, sample); ev != nil {
		return ev
	}
	if ev := d.evalRapid(rules, sample); ev != nil {
		return ev
	}
	if ev := d.evalHigh(rules, sample); ev != nil {
		return ev
	}
	return d.evalLow(rules, sample)
}

func (d *RollingDetector) evalHigh(rules Rules, sample model.HeartRateSample) *model.DetectionEvent {
	if !rules.HighThresholdEnabled || sample.Value < rules.HighThresholdBPM {
		return nil
	}
	return d.emit(model.DetectionEvent{
		Kind:       model.KindHighThreshold,
		HeartRate:  sample.Value,
		DetectedAt: sample.TS,
		Details:    fmt.Sprintf("heart rate %d bpm at or above high threshold %d bpm", sample.Value, rules.HighThresholdBPM),
	})
}

func (d *RollingDetector) evalLow(rules Rules, sample model.HeartRateSample) *model.DetectionEvent {
	if !rules.LowThresholdEnabled || sample.Value > rules.LowThresholdBPM {
		return nil
	}
	return d.emit(model.DetectionEvent{
		Kind:       model.KindLowThreshold,
		HeartRate:  sample.Value,
		DetectedAt: sample.TS,
		Details:    fmt.Sprintf("heart rate %d bpm at or below low threshold %d bpm", sample.Value, rules.LowThresholdBPM),
	})
}

func (d *RollingDetector) evalRapid(rules Rules, sample model.HeartRateSample) *model.DetectionEvent {
	if !rules.RapidIncreaseEnabled {
		return nil
	}
	baseline, ok := d.patternBaseline(sample, rules.RapidIncreaseWindow, rules.RapidIncreaseDeltaBPM)
	if !ok {
		return nil
	}
	return d.emit(model.DetectionEvent{
		Kind:       model.KindRapidIncrease,
		HeartRate:  sample.Value,
		Baseline:   baseline,
		DetectedAt: sample.TS,
		Details: fmt.Sprintf("heart rate rose from %d to %d bpm within %s",
			baseline, sample.Value, rules.RapidIncreaseWindow),
	})
}

func (d *RollingDetector) evalSpike(rules Rules, sample model.HeartRateSample) *model.DetectionEvent {
	if !rules.ExtremeSpikeEnabled {
		return nil
	}
	baseline, ok := d.patternBaseline(sample, rules.ExtremeSpikeWindow, rules.ExtremeSpikeDeltaBPM)
	if !ok {
		return nil
	}
	return d.emit(model.DetectionEvent{
		Kind:       model.KindExtremeSpike,
		HeartRate:  sample.Value,
		Baseline:   baseline,
		DetectedAt: sample.TS,
		Details: fmt.Sprintf("heart rate spiked from %d to %d bpm within %s",
			baseline, sample.Value, rules.ExtremeSpikeWindow),
	})
}

// patternBaseline reports whether any earlier in-window sample sits at least
// delta below the current one. The returned baseline is the earliest sample
// inside the matching window (not an average), matching the "from X to Y over
// T minutes" reading a clinician expects. Windows with fewer than two samples
// never fire.
func (d *RollingDetector) patternBaseline(current model.HeartRateSample, span time.Duration, delta int) (int, bool) {
	cutoff := current.TS.Add(-span)
	live := d.window.view()
	if len(live) < 2 {
		return 0, false
	}

	baseline := 0
	haveBaseline := false
	fired := false
	for _, s := range live {
		if s.TS.Before(cutoff) || !s.TS.Before(current.TS) {
			continue
		}
		if !haveBaseline {
			baseline = s.Value
			haveBaseline = true
		}
		if current.Value-s.Value >= delta {
			fired = true
		}
	}
	if !haveBaseline || !fired {
		return 0, false
	}
	return baseline, true
}

func (d *RollingDetector) emit(ev model.DetectionEvent) *model.DetectionEvent {
	metrics.RecordDetection(string(ev.Kind))
	return &ev
}
