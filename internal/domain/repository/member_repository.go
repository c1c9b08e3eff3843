package repository

import (
	"context"
	"time"

	"github.com/membergate/membership-service/internal/domain/model"
)

// MemberRepository handles persistence for member subscription records.
// Lookups that find nothing return (nil, nil).
type MemberRepository interface {
	Get(ctx context.Context, userID int64) (*model.Member, error)
	Create(ctx context.Context, member *model.Member) error
	Update(ctx context.Context, member *model.Member) error

	// ListActiveExpiringOn returns active members whose next payment date
	// falls exactly on the given calendar date. Whitelisted members carry no
	// payment date and are excluded by construction.
	ListActiveExpiringOn(ctx context.Context, date time.Time) ([]*model.Member, error)

	// ListActiveOverdue returns active members whose next payment date is
	// strictly before the given calendar date.
	ListActiveOverdue(ctx context.Context, today time.Time) ([]*model.Member, error)

	CountByStatus(ctx context.Context) (map[model.MemberStatus]int64, error)
}
