package simulate

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Scenario Scenario      // Heart-rate profile to stream
	Duration time.Duration // Total stream length
	Interval time.Duration // Gap between samples
	Timeout  time.Duration // HTTP request timeout
	Seed     int64         // RNG seed (0 picks one from the clock)
	LogFile  string        // Log file for simulator output
	Verbose  bool          // Enable per-sample logging
}

// Sample is the wire form of a heart-rate reading.
type Sample struct {
	HeartRate int    `json:"heart_rate"`
	TS        string `json:"ts"`
	Source    string `json:"source"`
}

// AckResponse is the service's answer to a submitted sample.
type AckResponse struct {
	Status    string `json:"status"`
	Detection *struct {
		Kind      string `json:"kind"`
		HeartRate int    `json:"heart_rate"`
		Baseline  int    `json:"baseline"`
	} `json:"detection,omitempty"`
}

// Stats holds simulation statistics.
type Stats struct {
	SamplesSent int
	Accepted    int
	Detections  int
	Failed      int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
