package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/pulsegate/internal/adapters/delivery"
	"github.com/okian/pulsegate/internal/adapters/http/api"
	"github.com/okian/pulsegate/internal/adapters/http/swagger"
	"github.com/okian/pulsegate/internal/adapters/netmon"
	service "github.com/okian/pulsegate/internal/app"
	"github.com/okian/pulsegate/internal/config"
	"github.com/okian/pulsegate/internal/domain/detector"
	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
	"github.com/okian/pulsegate/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			os.Stderr.WriteString("failed to flush logs: " + err.Error() + "\n")
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Create and start the monitoring pipeline with configuration options
	svc := service.New(
		service.WithLogger(loggerInstance),
		service.WithRules(rulesFromConfig(cfg)),
		service.WithConfirmationWindow(time.Duration(cfg.ConfirmationWindowSec)*time.Second),
		service.WithQueueOptions(
			delivery.WithCycleInterval(time.Duration(cfg.CycleIntervalSec)*time.Second),
			delivery.WithBatchSize(cfg.BatchSize),
			delivery.WithMaxAttempts(cfg.MaxAttempts),
			delivery.WithRetryPolicy(
				time.Duration(cfg.RetryBaseSec)*time.Second,
				time.Duration(cfg.RetryMaxSec)*time.Second,
				time.Duration(cfg.RetryJitterSec)*time.Second,
			),
			delivery.WithSentGrace(time.Duration(cfg.SentGraceSec)*time.Second),
			delivery.WithFailedRetention(time.Duration(cfg.FailedRetentionHours)*time.Hour),
			delivery.WithSendTimeout(time.Duration(cfg.SendTimeoutSec)*time.Second),
		),
		service.WithMonitorOptions(
			netmon.WithTarget(cfg.ProbeTarget),
			netmon.WithInterval(time.Duration(cfg.ProbeIntervalSec)*time.Second),
		),
		service.WithRedis(cfg.RedisAddr, cfg.RedisDB),
		service.WithGatewayURL(cfg.GatewayURL),
		service.WithContacts(contactsFromConfig(cfg.Contacts)),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register API documentation under /api-docs
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// rulesFromConfig maps the flat config fields onto detection rules.
func rulesFromConfig(cfg *config.Config) detector.Rules {
	return detector.Rules{
		HighThresholdBPM:      cfg.HighThresholdBPM,
		LowThresholdBPM:       cfg.LowThresholdBPM,
		RapidIncreaseDeltaBPM: cfg.RapidIncreaseDeltaBPM,
		RapidIncreaseWindow:   time.Duration(cfg.RapidIncreaseWindowSec) * time.Second,
		ExtremeSpikeDeltaBPM:  cfg.ExtremeSpikeDeltaBPM,
		ExtremeSpikeWindow:    time.Duration(cfg.ExtremeSpikeWindowSec) * time.Second,
		HighThresholdEnabled:  cfg.HighThresholdEnabled,
		LowThresholdEnabled:   cfg.LowThresholdEnabled,
		RapidIncreaseEnabled:  cfg.RapidIncreaseEnabled,
		ExtremeSpikeEnabled:   cfg.ExtremeSpikeEnabled,
	}
}

// contactsFromConfig converts configured contacts into domain contacts.
func contactsFromConfig(in []config.ContactConfig) []model.Contact {
	out := make([]model.Contact, 0, len(in))
	for _, c := range in {
		out = append(out, model.Contact{
			ID:       c.ID,
			Name:     c.Name,
			Channel:  model.NotificationChannel(c.Channel),
			Address:  c.Address,
			Priority: model.NotificationPriority(c.Priority),
		})
	}
	return out
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
