package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// WebhookChannel POSTs alerts as JSON to an external endpoint, for
// shops that bridge alerts into chat or a ticketing system.
type WebhookChannel struct {
	logger *zap.Logger
	client *http.Client
	url    string
}

// NewWebhookChannel creates the webhook channel. An empty url leaves
// the channel unconfigured; client may be nil for a default.
func NewWebhookChannel(logger *zap.Logger, url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{
		logger: logger.Named("webhook"),
		client: client,
		url:    url,
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Send(ctx context.Context, entry *model.AlertQueueEntry) error {
	if c.url == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return Permanent(fmt.Errorf("failed to marshal entry: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Permanent(fmt.Errorf("failed to build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Info("Alert webhook delivered",
			zap.String("entry_id", entry.ID),
			zap.Int("status", resp.StatusCode))
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The endpoint rejected the payload; retrying cannot help.
		return Permanent(fmt.Errorf("webhook rejected with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}
