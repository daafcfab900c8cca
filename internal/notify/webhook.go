package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/junhyuklee/mocktrade/internal/domain"
)

// WebhookSender POSTs execution notices to an external push service (for
// example a mobile-push relay) that handles the last hop to the user.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for the given endpoint URL. It
// uses a default HTTP client with a 10-second timeout.
func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SendToUser posts the notice wrapped with the target user ID.
func (w *WebhookSender) SendToUser(ctx context.Context, userID string, notice domain.ExecutionNotice) error {
	payload := struct {
		UserID string                 `json:"user_id"`
		Event  string                 `json:"event"`
		Data   domain.ExecutionNotice `json:"data"`
	}{
		UserID: userID,
		Event:  "reserved_order_executed",
		Data:   notice,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return "webhook"
}

// Compile-time interface check.
var _ Sender = (*WebhookSender)(nil)
