package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/pulsegate/internal/domain/model"
	"github.com/okian/pulsegate/pkg/logger"
)

// defaultClientTimeout backstops a gateway that accepts the connection but
// never answers. Per-attempt deadlines come from the caller's context.
const defaultClientTimeout = 30 * time.Second

// webhookPayload is the wire format the notification gateway accepts.
type webhookPayload struct {
	Channel string `json:"channel"`
	Address string `json:"address"`
	Message string `json:"message"`
}

// WebhookSender posts notifications to an HTTP gateway that fans out to the
// actual push, SMS, and email providers.
type WebhookSender struct {
	url    string
	client *http.Client
	lg     logger.Logger
}

// NewWebhookSender creates a sender targeting the given gateway URL.
func NewWebhookSender(url string, opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: defaultClientTimeout},
		lg:     logger.Named("transport"),
	}

	// Apply all options
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Send posts the message and treats any non-2xx answer as a failure.
func (s *WebhookSender) Send(ctx context.Context, address string, channel model.NotificationChannel, message string) error {
	body, err := json.Marshal(webhookPayload{
		Channel: string(channel),
		Address: address,
		Message: message,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodePayload, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.lg.Debug(ctx, "gateway rejected notification",
			logger.String("address", address),
			logger.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: gateway returned %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

// WebhookOption applies a configuration option to the WebhookSender.
type WebhookOption func(*WebhookSender)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSender) {
		if c != nil {
			s.client = c
		}
	}
}
