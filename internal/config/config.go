// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keep fields unexported where possible and use functional options.
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

// ContactConfig describes one registered emergency contact.
type ContactConfig struct {
	ID       string `koanf:"id"`
	Name     string `koanf:"name"`
	Channel  string `koanf:"channel"`  // push, sms, email
	Address  string `koanf:"address"`  // device token, phone number, or email
	Priority string `koanf:"priority"` // critical, high, normal
}

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Detection rule thresholds. Zero delta or window disables validation of
	// the matching rule; the enable flags below gate evaluation at runtime.
	HighThresholdBPM       int  `koanf:"high_threshold_bpm"`
	LowThresholdBPM        int  `koanf:"low_threshold_bpm"`
	RapidIncreaseDeltaBPM  int  `koanf:"rapid_increase_delta_bpm"`
	RapidIncreaseWindowSec int  `koanf:"rapid_increase_window_sec"`
	ExtremeSpikeDeltaBPM   int  `koanf:"extreme_spike_delta_bpm"`
	ExtremeSpikeWindowSec  int  `koanf:"extreme_spike_window_sec"`
	HighThresholdEnabled   bool `koanf:"high_threshold_enabled"`
	LowThresholdEnabled    bool `koanf:"low_threshold_enabled"`
	RapidIncreaseEnabled   bool `koanf:"rapid_increase_enabled"`
	ExtremeSpikeEnabled    bool `koanf:"extreme_spike_enabled"`

	// ConfirmationWindowSec is the user-cancellable countdown before an
	// emergency is raised.
	ConfirmationWindowSec int `koanf:"confirmation_window_sec"`

	// Delivery queue tuning.
	CycleIntervalSec     int `koanf:"cycle_interval_sec"`
	BatchSize            int `koanf:"batch_size"`
	MaxAttempts          int `koanf:"max_attempts"`
	RetryBaseSec         int `koanf:"retry_base_sec"`
	RetryMaxSec          int `koanf:"retry_max_sec"`
	RetryJitterSec       int `koanf:"retry_jitter_sec"`
	SentGraceSec         int `koanf:"sent_grace_sec"`
	FailedRetentionHours int `koanf:"failed_retention_hours"`
	SendTimeoutSec       int `koanf:"send_timeout_sec"`

	// RedisAddr selects the durable store backend; empty falls back to the
	// in-process store (data lost on restart).
	RedisAddr string `koanf:"redis_addr"`
	RedisDB   int    `koanf:"redis_db"`

	// Network monitor probe settings.
	ProbeTarget      string `koanf:"probe_target"`
	ProbeIntervalSec int    `koanf:"probe_interval_sec"`

	// GatewayURL is the notification relay endpoint the transport posts to.
	GatewayURL string `koanf:"gateway_url"`

	// Contacts registered at startup; replaceable at runtime via the API.
	Contacts []ContactConfig `koanf:"contacts"`
}

// New creates a Config populated with defaults.
func New() *Config {
	c := &Config{
		LogLevel: "info",
		Addr:     ":9080",

		HighThresholdBPM:       150,
		LowThresholdBPM:        40,
		RapidIncreaseDeltaBPM:  30,
		RapidIncreaseWindowSec: 600,
		ExtremeSpikeDeltaBPM:   40,
		ExtremeSpikeWindowSec:  300,
		HighThresholdEnabled:   true,
		LowThresholdEnabled:    true,
		RapidIncreaseEnabled:   true,
		ExtremeSpikeEnabled:    true,

		ConfirmationWindowSec: 15,

		CycleIntervalSec:     30,
		BatchSize:            3,
		MaxAttempts:          5,
		RetryBaseSec:         30,
		RetryMaxSec:          300,
		RetryJitterSec:       30,
		SentGraceSec:         60,
		FailedRetentionHours: 24,
		SendTimeoutSec:       10,

		ProbeTarget:      "1.1.1.1:443",
		ProbeIntervalSec: 15,

		GatewayURL: "http://localhost:9081/notify",
	}
	return c
}
