package model

import (
	"database/sql/driver"
	"time"
)

// ActivityAction is the closed set of audit trail action types.
type ActivityAction string

const (
	ActionSubscriptionStarted  ActivityAction = "subscription_started"
	ActionSubscriptionRenewed  ActivityAction = "subscription_renewed"
	ActionSubscriptionExpired  ActivityAction = "subscription_expired"
	ActionPaymentSucceeded     ActivityAction = "payment_succeeded"
	ActionPaymentFailed        ActivityAction = "payment_failed"
	ActionPaymentRefunded      ActivityAction = "payment_refunded"
	ActionUserWhitelisted      ActivityAction = "user_whitelisted"
	ActionUserCreated          ActivityAction = "user_created"
	ActionUserRemovedFromGroup ActivityAction = "user_removed_from_group"
	ActionReminderSent         ActivityAction = "reminder_sent"
)

// Scan implements sql.Scanner interface
func (a *ActivityAction) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*a = ActivityAction(v)
	case []byte:
		*a = ActivityAction(v)
	}
	return nil
}

// Value implements driver.Valuer interface
func (a ActivityAction) Value() (driver.Value, error) {
	return string(a), nil
}

// ActivityLog is an append-only audit trail entry, one per meaningful mutation.
type ActivityLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64          `gorm:"not null;index:idx_activity_log_user_action" json:"user_id"`
	Action    ActivityAction `gorm:"size:50;not null;index:idx_activity_log_user_action" json:"action"`
	Details   JSONB          `gorm:"type:jsonb;default:'{}'" json:"details"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ActivityLog) TableName() string {
	return "activity_log"
}
