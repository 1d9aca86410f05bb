package simulate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/pulsegate/pkg/logger"
)

// Run streams the configured scenario to the service and reports what
// the detector made of it.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting heart-rate simulation",
		logger.String("baseURL", config.BaseURL),
		logger.String("scenario", string(config.Scenario)),
		logger.Duration("duration", config.Duration),
		logger.Duration("interval", config.Interval),
		logger.Duration("timeout", config.Timeout),
		logger.Any("verbose", config.Verbose))

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	if err := streamSamples(ctx, config, stats); err != nil {
		return fmt.Errorf("sample streaming failed: %w", err)
	}

	reportAlertState(ctx, config)

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	logger.Get().Info(ctx, "simulation completed")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.Get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close response body", logger.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// streamSamples posts one sample per interval until the duration elapses.
func streamSamples(ctx context.Context, config *Config, stats *Stats) error {
	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/samples"
	prof := newProfile(config.Scenario, config.Duration, config.Seed)

	start := time.Now()
	ticker := time.NewTicker(config.Interval)
	defer ticker.Stop()

	for {
		elapsed := time.Since(start)
		if elapsed > config.Duration {
			return nil
		}

		sample := Sample{
			HeartRate: prof.at(elapsed),
			TS:        time.Now().UTC().Format(time.RFC3339),
			Source:    "simulator",
		}
		submitSample(ctx, client, url, sample, config, stats)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during streaming: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// submitSample posts a single sample and records the outcome.
func submitSample(ctx context.Context, client *HTTPClient, url string, sample Sample, config *Config, stats *Stats) {
	stats.SamplesSent++

	resp, err := client.Post(ctx, url, sample)
	if err != nil {
		stats.Failed++
		logger.Get().Warn(ctx, "sample submission failed", logger.Error(err))
		return
	}

	body, err := readResponseBody(resp)
	if err != nil || resp.StatusCode != http.StatusAccepted {
		stats.Failed++
		logger.Get().Warn(ctx, "sample rejected",
			logger.Int("status", resp.StatusCode),
			logger.Int("heartRate", sample.HeartRate))
		return
	}

	stats.Accepted++

	var ack AckResponse
	if err := json.Unmarshal(body, &ack); err == nil && ack.Detection != nil {
		stats.Detections++
		logger.Get().Info(ctx, "detection fired",
			logger.String("kind", ack.Detection.Kind),
			logger.Int("heartRate", ack.Detection.HeartRate),
			logger.Int("baseline", ack.Detection.Baseline))
	} else if config.Verbose {
		logger.Get().Info(ctx, "sample accepted", logger.Int("heartRate", sample.HeartRate))
	}
}

// reportAlertState logs how the confirmation gate ended up.
func reportAlertState(ctx context.Context, config *Config) {
	client := newHTTPClient(config.Timeout)

	resp, err := client.Get(ctx, config.BaseURL+"/alert")
	if err != nil {
		logger.Get().Warn(ctx, "failed to fetch alert state", logger.Error(err))
		return
	}

	body, err := readResponseBody(resp)
	if err != nil {
		logger.Get().Warn(ctx, "failed to read alert state", logger.Error(err))
		return
	}

	var alert struct {
		State            string `json:"state"`
		RemainingSeconds int    `json:"remaining_seconds"`
		LastOutcome      string `json:"last_outcome,omitempty"`
	}
	if err := json.Unmarshal(body, &alert); err != nil {
		logger.Get().Warn(ctx, "failed to decode alert state", logger.Error(err))
		return
	}

	logger.Get().Info(ctx, "final alert state",
		logger.String("state", alert.State),
		logger.Int("remainingSeconds", alert.RemainingSeconds),
		logger.String("lastOutcome", alert.LastOutcome))
}

// displayFinalStats prints the final simulation statistics.
func displayFinalStats(stats *Stats) {
	var samplesPerSecond float64
	if stats.Duration > 0 {
		samplesPerSecond = float64(stats.SamplesSent) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("samplesSent", stats.SamplesSent),
		logger.Int("accepted", stats.Accepted),
		logger.Int("detections", stats.Detections),
		logger.Int("failed", stats.Failed),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("samplesPerSecond", samplesPerSecond))
}
