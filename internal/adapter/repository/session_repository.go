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

type sessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSessionRepository creates a new payment session repository
func NewSessionRepository(db *gorm.DB, logger *zap.Logger) repository.SessionRepository {
	return &sessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new payment session.
func (r *sessionRepository) Create(ctx context.Context, session *model.PaymentSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		r.logger.Error("Failed to create payment session",
			zap.String("session_id", session.SessionID),
			zap.Int64("user_id", session.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by its session ID, (nil, nil) when absent.
func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	var session model.PaymentSession

	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	return &session, nil
}

// GetPendingByReference finds the newest pending session for a reference.
func (r *sessionRepository) GetPendingByReference(ctx context.Context, reference string) (*model.PaymentSession, error) {
	var session model.PaymentSession

	err := r.db.WithContext(ctx).
		Where("reference = ? AND status = ?", reference, model.SessionStatusPending).
		Order("created_at DESC").
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session by reference: %w", err)
	}
	return &session, nil
}

// GetByProviderLinkID finds a session by the provider-side link identifier.
func (r *sessionRepository) GetByProviderLinkID(ctx context.Context, providerLinkID string) (*model.PaymentSession, error) {
	var session model.PaymentSession

	err := r.db.WithContext(ctx).
		Where("provider_link_id = ?", providerLinkID).
		Order("created_at DESC").
		First(&session).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session by provider link id: %w", err)
	}
	return &session, nil
}

// Update persists mutable session fields.
func (r *sessionRepository) Update(ctx context.Context, session *model.PaymentSession) error {
	result := r.db.WithContext(ctx).
		Model(&model.PaymentSession{}).
		Where("session_id = ?", session.SessionID).
		Updates(map[string]interface{}{
			"status":           session.Status,
			"provider_link_id": session.ProviderLinkID,
			"payment_url":      session.PaymentURL,
			"invoice_payload":  session.InvoicePayload,
			"transaction_id":   session.TransactionID,
			"expires_at":       session.ExpiresAt,
		})

	if result.Error != nil {
		r.logger.Error("Failed to update payment session",
			zap.String("session_id", session.SessionID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update payment session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("payment session not found: %s", session.SessionID)
	}
	return nil
}

// ListStale returns pending sessions whose expiry has passed.
func (r *sessionRepository) ListStale(ctx context.Context, now time.Time) ([]*model.PaymentSession, error) {
	var sessions []*model.PaymentSession

	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			model.SessionStatusPending, now).
		Find(&sessions).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return sessions, nil
}

// AggregateRevenue sums succeeded sessions per provider.
func (r *sessionRepository) AggregateRevenue(ctx context.Context) ([]*repository.RevenueRow, error) {
	var rows []*repository.RevenueRow

	err := r.db.WithContext(ctx).
		Model(&model.PaymentSession{}).
		Select("provider, COUNT(*) AS count, COALESCE(SUM(amount_cents), 0) AS total_cents").
		Where("status = ?", model.SessionStatusSucceeded).
		Group("provider").
		Scan(&rows).Error

	if err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	return rows, nil
}
