package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookTransport posts events to a remote HTTP endpoint.
type WebhookTransport struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// WebhookConfig configures the HTTP transport.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
}

// NewWebhookTransport creates an HTTP transport.
func NewWebhookTransport(cfg WebhookConfig) (*WebhookTransport, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookTransport{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Name identifies the transport in logs.
func (t *WebhookTransport) Name() string {
	return "webhook"
}

// Send posts one event.
func (t *WebhookTransport) Send(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http request failed with status %s", resp.Status)
	}
	return nil
}
