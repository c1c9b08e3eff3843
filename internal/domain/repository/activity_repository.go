package repository

import (
	"context"
	"time"

	"github.com/membergate/membership-service/internal/domain/model"
)

// ActivityRepository owns the append-only audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, userID int64, action model.ActivityAction, details model.JSONB) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.ActivityLog, error)
	CountByAction(ctx context.Context, userID int64, action model.ActivityAction) (int64, error)

	// PurgeOlderThan trims entries past the retention window.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
