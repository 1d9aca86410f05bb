// Package detector evaluates heart-rate samples against threshold and
// pattern rules over a rolling window.
package detector

// Option applies a configuration option to the RollingDetector.
type Option func(*RollingDetector)

// WithRules sets the initial rule configuration. Invalid rule sets are
// ignored and the defaults kept; runtime changes go through SetRules which
// reports the validation error instead.
func WithRules(rules Rules) Option {
	return func(d *RollingDetector) {
		if rules.Validate() == nil {
			d.rules = rules
		}
	}
}
