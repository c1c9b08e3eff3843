package database

import (
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/membergate/membership-service/internal/adapter/repository"
	"github.com/membergate/membership-service/internal/config"
	domainRepo "github.com/membergate/membership-service/internal/domain/repository"
)

// Repositories holds all repository instances
type Repositories struct {
	Member      domainRepo.MemberRepository
	Activity    domainRepo.ActivityRepository
	Session     domainRepo.SessionRepository
	EventLedger domainRepo.EventLedger
}

// NewRepositories creates new repository instances with database connection.
// The event ledger backend follows the idempotency config: the conditional
// insert suffices for a single replica, redis SetNX covers multi-replica
// deployments.
func NewRepositories(db *gorm.DB, cfg config.IdempotencyConfig, logger *zap.Logger) *Repositories {
	var ledger domainRepo.EventLedger
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ledger = repository.NewRedisEventLedger(client, logger)
	} else {
		ledger = repository.NewEventLedger(db, logger)
	}

	return &Repositories{
		Member:      repository.NewMemberRepository(db, logger),
		Activity:    repository.NewActivityRepository(db, logger),
		Session:     repository.NewSessionRepository(db, logger),
		EventLedger: ledger,
	}
}
