package repository

import (
	"context"
	"time"

	"github.com/membergate/membership-service/internal/domain/model"
)

// SessionRepository handles persistence for payment sessions.
// Lookups that find nothing return (nil, nil).
type SessionRepository interface {
	Create(ctx context.Context, session *model.PaymentSession) error
	GetByID(ctx context.Context, sessionID string) (*model.PaymentSession, error)

	// GetPendingByReference returns the most recent non-terminal session
	// carrying the given reference.
	GetPendingByReference(ctx context.Context, reference string) (*model.PaymentSession, error)

	GetByProviderLinkID(ctx context.Context, providerLinkID string) (*model.PaymentSession, error)
	Update(ctx context.Context, session *model.PaymentSession) error

	// ListStale returns pending sessions whose expiry passed before now.
	ListStale(ctx context.Context, now time.Time) ([]*model.PaymentSession, error)

	// AggregateRevenue sums succeeded sessions per provider.
	AggregateRevenue(ctx context.Context) ([]*RevenueRow, error)
}

// RevenueRow is a per-provider revenue aggregate over succeeded sessions.
type RevenueRow struct {
	Provider   model.ProviderType
	Count      int64
	TotalCents int64
}
