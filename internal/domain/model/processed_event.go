package model

import "time"

// ProcessedEvent marks a webhook event id as handled. Providers retry
// delivery for up to 3 days on non-200 responses; markers are kept for 7
// days so late duplicates are still absorbed.
type ProcessedEvent struct {
	EventID     string    `gorm:"primaryKey;size:255" json:"event_id"`
	ProcessedAt time.Time `gorm:"not null" json:"processed_at"`
	ExpiresAt   time.Time `gorm:"not null;index" json:"expires_at"`
}

// TableName specifies the table name for GORM
func (ProcessedEvent) TableName() string {
	return "processed_events"
}

// ProcessedEventTTL is how long idempotency markers are retained.
const ProcessedEventTTL = 7 * 24 * time.Hour
