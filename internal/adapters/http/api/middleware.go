// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/pulsegate/pkg/metrics"
)

// MetricsMiddleware wraps a handler to record request counters, latency
// histograms, and error labels for the endpoint.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusStr := strconv.Itoa(rec.status)

		metrics.RecordHTTPRequest(endpoint, r.Method, statusStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusStr, durationMs)

		if rec.status >= http.StatusBadRequest {
			errorType, severity := classifyStatus(rec.status)
			metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType)
			metrics.RecordErrorByType(errorType, severity)
			metrics.RecordErrorLatency("http", errorType, durationMs)
		}
	}
}

// classifyStatus maps an HTTP status onto the (type, severity) label pair
// used by the error metrics. Server-side failures rank high; anything the
// caller can correct on their own ranks medium.
func classifyStatus(status int) (errorType, severity string) {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", "high"
	case status == http.StatusTooManyRequests:
		return "rate_limit", "medium"
	case status == http.StatusNotFound:
		return "not_found", "medium"
	case status >= http.StatusBadRequest:
		return "client_error", "medium"
	default:
		return "unknown", "low"
	}
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
