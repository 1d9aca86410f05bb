package simulate

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/pulsegate/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "simulate_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`Pulsegate Heart-Rate Simulator
==============================

Streams synthetic heart-rate samples to a running pulsegate service and
reports which detections fired.

Usage:
  go run cmd/simulate/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -scenario string
        Profile to stream: rest, exercise, climb, spike or brady (default "rest")
  -duration duration
        Total stream length (default 2m)
  -interval duration
        Gap between samples (default 1s)
  -timeout duration
        HTTP request timeout (default 10s)
  -seed int
        RNG seed for reproducible noise (default: from the clock)
  -log string
        Log file for simulator output (default: simulate_log_TIMESTAMP.log)
  -verbose
        Log every accepted sample, not just detections
  -help
        Show this help message

Examples:
  # Stream a resting profile with defaults
  go run cmd/simulate/main.go

  # Trigger an extreme spike detection
  go run cmd/simulate/main.go -scenario spike -duration 90s

  # Slow bradycardia drop against a local service
  go run cmd/simulate/main.go -scenario brady -duration 5m -interval 2s
`)
}
