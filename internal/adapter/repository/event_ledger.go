package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
)

type eventLedger struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewEventLedger creates a durable idempotency ledger backed by the database.
// Claims are single conditional inserts, so concurrent duplicate deliveries
// resolve to exactly one winner at the storage layer.
func NewEventLedger(db *gorm.DB, logger *zap.Logger) repository.EventLedger {
	return &eventLedger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// TryClaim atomically inserts a marker for the event id.
func (l *eventLedger) TryClaim(ctx context.Context, eventID string) (bool, error) {
	now := l.now().UTC()
	marker := &model.ProcessedEvent{
		EventID:     eventID,
		ProcessedAt: now,
		ExpiresAt:   now.Add(model.ProcessedEventTTL),
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(marker)

	if result.Error != nil {
		l.logger.Error("Failed to claim event",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to claim event: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

// Release drops the claim so a redelivery of the event can be reprocessed.
func (l *eventLedger) Release(ctx context.Context, eventID string) error {
	result := l.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Delete(&model.ProcessedEvent{})

	if result.Error != nil {
		return fmt.Errorf("failed to release event claim: %w", result.Error)
	}
	return nil
}

// PurgeExpired removes markers past their retention window.
func (l *eventLedger) PurgeExpired(ctx context.Context) (int64, error) {
	result := l.db.WithContext(ctx).
		Where("expires_at < ?", l.now().UTC()).
		Delete(&model.ProcessedEvent{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge processed events: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		l.logger.Info("Purged expired event markers",
			zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}
