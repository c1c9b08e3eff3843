package group

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
)

// Manager controls membership of the paid group.
type Manager interface {
	// RemoveUser removes the user from the group. Removing a user who is
	// not in the group is a success.
	RemoveUser(ctx context.Context, userID int64) error

	// InviteUser creates a single-use invite link valid for 24 hours and
	// returns it. Inviting a user who is already a member is a success and
	// returns an empty link.
	InviteUser(ctx context.Context, userID int64) (string, error)
}

// Client is the HTTP group-management collaborator.
type Client struct {
	baseURL  string
	apiToken string
	groupID  int64
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a group-management client.
func NewClient(cfg config.GroupConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		apiToken: cfg.APIToken,
		groupID:  cfg.GroupID,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// RemoveUser removes a user from the managed group.
// POST /api/v1/groups/{groupID}/remove
func (c *Client) RemoveUser(ctx context.Context, userID int64) error {
	body, status, err := c.post(ctx, fmt.Sprintf("/api/v1/groups/%d/remove", c.groupID), map[string]interface{}{
		"user_id": userID,
	})
	if err != nil {
		return fmt.Errorf("failed to remove user %d from group: %w", userID, err)
	}

	switch {
	case status == http.StatusOK || status == http.StatusNoContent:
		c.logger.Info("Removed user from group", zap.Int64("user_id", userID))
		return nil
	case status == http.StatusNotFound:
		// Already gone, nothing to do.
		c.logger.Info("User not in group, removal skipped", zap.Int64("user_id", userID))
		return nil
	default:
		c.logger.Error("Group removal failed",
			zap.Int64("user_id", userID),
			zap.Int("status_code", status),
			zap.String("response", string(body)))
		return fmt.Errorf("group removal failed with status %d", status)
	}
}

// InviteUser creates a single-use invite link for the user.
// POST /api/v1/groups/{groupID}/invites
func (c *Client) InviteUser(ctx context.Context, userID int64) (string, error) {
	body, status, err := c.post(ctx, fmt.Sprintf("/api/v1/groups/%d/invites", c.groupID), map[string]interface{}{
		"user_id":     userID,
		"single_use":  true,
		"valid_hours": 24,
	})
	if err != nil {
		return "", fmt.Errorf("failed to invite user %d to group: %w", userID, err)
	}

	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		var result struct {
			InviteLink string `json:"invite_link"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("failed to parse invite response: %w", err)
		}
		c.logger.Info("Created group invite",
			zap.Int64("user_id", userID))
		return result.InviteLink, nil
	case status == http.StatusConflict:
		// Already a member.
		c.logger.Info("User already in group, invite skipped", zap.Int64("user_id", userID))
		return "", nil
	default:
		c.logger.Error("Group invite failed",
			zap.Int64("user_id", userID),
			zap.Int("status_code", status),
			zap.String("response", string(body)))
		return "", fmt.Errorf("group invite failed with status %d", status)
	}
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) ([]byte, int, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}
