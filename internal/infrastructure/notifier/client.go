package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
)

// Notifier delivers user-facing subscription messages. Delivery is
// best-effort; callers log failures and continue.
type Notifier interface {
	SendReminder(ctx context.Context, userID int64, daysRemaining int, paymentURL string) error
	SendExpiryNotice(ctx context.Context, userID int64) error
	SendPaymentConfirmation(ctx context.Context, userID int64, nextPaymentDate time.Time) error
	SendPaymentFailed(ctx context.Context, userID int64, reason string) error
}

// Client is the HTTP notification collaborator.
type Client struct {
	baseURL  string
	apiToken string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a notification client.
func NewClient(cfg config.NotifierConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// SendReminder tells the user their subscription expires in daysRemaining days.
func (c *Client) SendReminder(ctx context.Context, userID int64, daysRemaining int, paymentURL string) error {
	return c.send(ctx, "reminder", map[string]interface{}{
		"user_id":        userID,
		"days_remaining": daysRemaining,
		"payment_url":    paymentURL,
	})
}

// SendExpiryNotice tells the user their subscription has ended and access was revoked.
func (c *Client) SendExpiryNotice(ctx context.Context, userID int64) error {
	return c.send(ctx, "expiry", map[string]interface{}{
		"user_id": userID,
	})
}

// SendPaymentConfirmation confirms a successful payment and the new paid-through date.
func (c *Client) SendPaymentConfirmation(ctx context.Context, userID int64, nextPaymentDate time.Time) error {
	return c.send(ctx, "payment_confirmed", map[string]interface{}{
		"user_id":           userID,
		"next_payment_date": nextPaymentDate.Format("2006-01-02"),
	})
}

// SendPaymentFailed tells the user a payment attempt failed.
func (c *Client) SendPaymentFailed(ctx context.Context, userID int64, reason string) error {
	return c.send(ctx, "payment_failed", map[string]interface{}{
		"user_id": userID,
		"reason":  reason,
	})
}

func (c *Client) send(ctx context.Context, kind string, payload map[string]interface{}) error {
	payload["kind"] = kind

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/notifications", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Warn("Notification delivery failed",
			zap.String("kind", kind),
			zap.Error(err))
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		c.logger.Warn("Notification rejected",
			zap.String("kind", kind),
			zap.Int("status_code", resp.StatusCode))
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}

	c.logger.Debug("Notification sent", zap.String("kind", kind))
	return nil
}
