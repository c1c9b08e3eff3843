package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
)

type activityRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewActivityRepository creates a new activity log repository
func NewActivityRepository(db *gorm.DB, logger *zap.Logger) repository.ActivityRepository {
	return &activityRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit trail entry. Entries are write-once.
func (r *activityRepository) Append(ctx context.Context, userID int64, action model.ActivityAction, details model.JSONB) error {
	if details == nil {
		details = model.JSONB{}
	}

	entry := &model.ActivityLog{
		UserID:  userID,
		Action:  action,
		Details: details,
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("Failed to append activity log",
			zap.Int64("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err))
		return fmt.Errorf("failed to append activity log: %w", err)
	}
	return nil
}

// ListByUser returns the most recent entries for a user, newest first.
func (r *activityRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.ActivityLog, error) {
	if limit < 1 {
		limit = 10
	} else if limit > 100 {
		limit = 100
	}

	var entries []*model.ActivityLog
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list activity log: %w", err)
	}
	return entries, nil
}

// CountByAction counts a user's entries with the given action.
func (r *activityRepository) CountByAction(ctx context.Context, userID int64, action model.ActivityAction) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ActivityLog{}).
		Where("user_id = ? AND action = ?", userID, action).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("failed to count activity log: %w", err)
	}
	return count, nil
}

// PurgeOlderThan trims entries created before the cutoff.
func (r *activityRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.ActivityLog{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge activity log: %w", result.Error)
	}
	return result.RowsAffected, nil
}
