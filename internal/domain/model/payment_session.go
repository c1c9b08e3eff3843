package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionStatus represents the lifecycle state of a payment session
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusSucceeded SessionStatus = "succeeded"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusExpired   SessionStatus = "expired"
)

// Scan implements sql.Scanner interface
func (s *SessionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SessionStatus(v)
	case []byte:
		*s = SessionStatus(v)
	default:
		*s = SessionStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SessionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// IsTerminal reports whether the session can no longer change state.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusSucceeded || s == SessionStatusFailed || s == SessionStatusExpired
}

// ProviderType identifies a payment rail.
type ProviderType string

const (
	ProviderTypeCard  ProviderType = "card"
	ProviderTypeStars ProviderType = "stars"
)

// Scan implements sql.Scanner interface
func (p *ProviderType) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*p = ProviderType(v)
	case []byte:
		*p = ProviderType(v)
	}
	return nil
}

// Value implements driver.Valuer interface
func (p ProviderType) Value() (driver.Value, error) {
	return string(p), nil
}

// PaymentSession represents one attempt to collect payment from a user.
// Sessions are created pending and terminated by webhook confirmation,
// explicit failure, or the expiry sweep; they are never resurrected.
type PaymentSession struct {
	SessionID      string        `gorm:"primaryKey;size:64" json:"session_id"`
	UserID         int64         `gorm:"not null;index" json:"user_id"`
	Plan           string        `gorm:"size:50;not null" json:"plan"`
	Reference      string        `gorm:"size:100;not null;index" json:"reference"`
	AmountCents    int64         `gorm:"not null" json:"amount_cents"`
	Currency       string        `gorm:"size:3;not null" json:"currency"`
	Provider       ProviderType  `gorm:"size:20;not null" json:"provider"`
	Status         SessionStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ProviderLinkID string        `gorm:"size:100;index" json:"provider_link_id,omitempty"`
	PaymentURL     string        `gorm:"size:500" json:"payment_url,omitempty"`
	InvoicePayload string        `gorm:"size:200" json:"invoice_payload,omitempty"`
	TransactionID  *string       `gorm:"size:100" json:"transaction_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	ExpiresAt      *time.Time    `gorm:"index" json:"expires_at,omitempty"`
}

// TableName specifies the table name for GORM
func (PaymentSession) TableName() string {
	return "payment_sessions"
}

// SessionReference builds the deterministic reference string embedded into
// provider metadata so webhook events can be matched back to a user and plan.
func SessionReference(userID int64, plan string) string {
	return fmt.Sprintf("sub_%d_%s", userID, plan)
}

// ParseSessionReference recovers the user ID and plan from a reference string.
func ParseSessionReference(ref string) (int64, string, error) {
	parts := strings.SplitN(ref, "_", 3)
	if len(parts) != 3 || parts[0] != "sub" {
		return 0, "", fmt.Errorf("malformed session reference %q", ref)
	}
	userID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("malformed user id in reference %q: %w", ref, err)
	}
	return userID, parts[2], nil
}
