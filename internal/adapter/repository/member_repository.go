package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
)

type memberRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *gorm.DB, logger *zap.Logger) repository.MemberRepository {
	return &memberRepository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a member by user ID, returning (nil, nil) when absent.
func (r *memberRepository) Get(ctx context.Context, userID int64) (*model.Member, error) {
	var member model.Member

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&member).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get member",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return &member, nil
}

// Create inserts a new member record.
func (r *memberRepository) Create(ctx context.Context, member *model.Member) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		r.logger.Error("Failed to create member",
			zap.Int64("user_id", member.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

// Update persists all fields of an existing member record.
func (r *memberRepository) Update(ctx context.Context, member *model.Member) error {
	result := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Where("user_id = ?", member.UserID).
		Updates(map[string]interface{}{
			"username":             member.Username,
			"status":               member.Status,
			"payment_method":       member.PaymentMethod,
			"next_payment_date":    member.NextPaymentDate,
			"card_payment_id":      member.CardPaymentID,
			"stars_transaction_id": member.StarsTransactionID,
			"last_reminded_at":     member.LastRemindedAt,
			"updated_at":           time.Now().UTC(),
		})

	if result.Error != nil {
		r.logger.Error("Failed to update member",
			zap.Int64("user_id", member.UserID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update member: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("member not found: %d", member.UserID)
	}
	return nil
}

// ListActiveExpiringOn returns active members expiring exactly on the given date.
func (r *memberRepository) ListActiveExpiringOn(ctx context.Context, date time.Time) ([]*model.Member, error) {
	var members []*model.Member

	day := model.DateOf(date)
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_payment_date >= ? AND next_payment_date < ?",
			model.MemberStatusActive, day, day.AddDate(0, 0, 1)).
		Find(&members).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list expiring members: %w", err)
	}
	return members, nil
}

// ListActiveOverdue returns active members whose payment date has passed.
func (r *memberRepository) ListActiveOverdue(ctx context.Context, today time.Time) ([]*model.Member, error) {
	var members []*model.Member

	err := r.db.WithContext(ctx).
		Where("status = ? AND next_payment_date < ?",
			model.MemberStatusActive, model.DateOf(today)).
		Find(&members).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list overdue members: %w", err)
	}
	return members, nil
}

// CountByStatus returns member counts grouped by subscription status.
func (r *memberRepository) CountByStatus(ctx context.Context) (map[model.MemberStatus]int64, error) {
	type row struct {
		Status model.MemberStatus
		Count  int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.Member{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	counts := make(map[model.MemberStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}
