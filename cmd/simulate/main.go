package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/pulsegate/internal/simulate"
)

// Default configuration constants.
const (
	defaultDuration   = 2 * time.Minute
	defaultInterval   = time.Second
	defaultTimeout    = 10 * time.Second
	defaultRunTimeout = 30 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		scenario = flag.String("scenario", "rest", "Profile to stream: rest, exercise, climb, spike or brady")
		duration = flag.Duration("duration", defaultDuration, "Total stream length")
		interval = flag.Duration("interval", defaultInterval, "Gap between samples")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed     = flag.Int64("seed", 0, "RNG seed for reproducible noise (0 uses the clock)")
		logFile  = flag.String("log", "", "Log file for simulator output (default: simulate_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Log every accepted sample, not just detections")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	if err := simulate.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	parsed, err := simulate.ParseScenario(*scenario)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	config := &simulate.Config{
		BaseURL:  *baseURL,
		Scenario: parsed,
		Duration: *duration,
		Interval: *interval,
		Timeout:  *timeout,
		Seed:     *seed,
		LogFile:  *logFile,
		Verbose:  *verbose,
	}

	if err := simulate.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
