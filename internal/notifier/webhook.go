package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookDispatcher posts welcome notifications to an e-mail function
type WebhookDispatcher struct {
	client *http.Client
	url    string
	apiKey string
}

// NewWebhookDispatcher creates a new WebhookDispatcher
func NewWebhookDispatcher(url, apiKey string) *WebhookDispatcher {
	return &WebhookDispatcher{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
		apiKey: apiKey,
	}
}

// SendWelcome posts w as JSON
func (d *WebhookDispatcher) SendWelcome(ctx context.Context, w Welcome) error {
	body, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification endpoint returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
