package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewManagerDefaults(t *testing.T) {
	m := NewManager(WithPrometheusRegistry(prometheus.NewRegistry()))
	if m == nil {
		t.Fatal("expected manager to be created")
	}
	if m.namespace != "pulsegate" {
		t.Errorf("expected namespace pulsegate, got %s", m.namespace)
	}
	if m.subsystem != "monitor" {
		t.Errorf("expected subsystem monitor, got %s", m.subsystem)
	}
}

func TestNewManagerOptions(t *testing.T) {
	m := NewManager(
		WithPrometheusRegistry(prometheus.NewRegistry()),
		WithNamespace("custom"),
		WithSubsystem("sub"),
		WithHistogramBuckets([]float64{1, 5, 10}),
		WithMetricsEnabled(false),
		WithCustomLabels(map[string]string{"env": "test"}),
	)
	if m.namespace != "custom" {
		t.Errorf("expected namespace custom, got %s", m.namespace)
	}
	if m.subsystem != "sub" {
		t.Errorf("expected subsystem sub, got %s", m.subsystem)
	}
	if len(m.histogramBuckets) != 3 {
		t.Errorf("expected 3 buckets, got %d", len(m.histogramBuckets))
	}
	if m.enabled {
		t.Error("expected metrics disabled")
	}
}

func TestGlobalHelpersDoNotPanic(t *testing.T) {
	// Package-level helpers route to the global manager; they must be safe to
	// call from any component at any time.
	RecordSampleIngested()
	RecordDetection("rapid_increase")
	RecordAlertConfirmed()
	RecordAlertCancelled()
	RecordAlertCountdownExpired()
	RecordEmergency()
	RecordNotificationEnqueued()
	RecordDeliveryAttempt()
	RecordNotificationSent()
	RecordNotificationFailed()
	RecordNotificationExpired()
	RecordRetryScheduled()
	RecordSendLatency(12.5)
	RecordCycleLatency(3.0)
	UpdateQueueDepth(7)
	RecordStoreLatency(1.0)
	RecordStoreError()
	UpdateNetworkOnline(true)
	UpdateNetworkOnline(false)
	RecordNetworkTransition()
	RecordHTTPRequest("samples", "POST", "202")
	RecordHTTPRequestDuration("samples", "POST", "202", 4.2)
	RecordErrorByComponent("delivery", "send_failed")
	RecordErrorByType("send_failed", "high")
	RecordErrorByEndpoint("samples", "POST", "client_error")
	RecordErrorLatency("http", "client_error", 2.0)
	UpdateSystemMemoryUsage(1024)
	UpdateSystemGoroutineCount(12)
	RecordSystemGCPauseTime(0.3)
}

func TestGetRegistry(t *testing.T) {
	if GetRegistry() == nil {
		t.Fatal("expected a non-nil registry")
	}

	families, err := GetRegistry().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families after helper calls")
	}
}
