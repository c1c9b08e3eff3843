package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/membergate/membership-service/internal/domain/model"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&model.Member{},
		&model.ActivityLog{},
		&model.PaymentSession{},
		&model.ProcessedEvent{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates indexes GORM doesn't handle automatically.
func createCustomIndexes(db *gorm.DB) error {
	// The overdue and reminder sweeps both scan active members by date.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_members_active_next_payment ON members (next_payment_date) WHERE status = 'active'`).Error; err != nil {
		return err
	}

	// Webhook settlement looks sessions up by reference while pending.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_pending_reference ON payment_sessions (reference) WHERE status = 'pending'`).Error; err != nil {
		return err
	}

	// The retention purge deletes processed events by expiry.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_processed_events_expires ON processed_events (expires_at)`).Error; err != nil {
		return err
	}

	return nil
}
