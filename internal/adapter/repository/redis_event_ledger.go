package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/domain/model"
	domainrepo "github.com/membergate/membership-service/internal/domain/repository"
)

const eventKeyPrefix = "webhook:event:"

type redisEventLedger struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisEventLedger creates an idempotency ledger backed by redis SETNX.
// It is the backend for multi-replica deployments, where duplicate webhook
// deliveries can land on different instances and a shared atomic store is
// required. Expiry is TTL-driven, so PurgeExpired is a no-op.
func NewRedisEventLedger(client *redis.Client, logger *zap.Logger) domainrepo.EventLedger {
	return &redisEventLedger{
		client: client,
		logger: logger,
	}
}

// TryClaim atomically records the event id via SETNX with the retention TTL.
func (l *redisEventLedger) TryClaim(ctx context.Context, eventID string) (bool, error) {
	claimed, err := l.client.SetNX(ctx, eventKeyPrefix+eventID, 1, model.ProcessedEventTTL).Result()
	if err != nil {
		l.logger.Error("Failed to claim event in redis",
			zap.String("event_id", eventID),
			zap.Error(err))
		return false, fmt.Errorf("failed to claim event: %w", err)
	}
	return claimed, nil
}

// Release drops the claim so a redelivery of the event can be reprocessed.
func (l *redisEventLedger) Release(ctx context.Context, eventID string) error {
	if err := l.client.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("failed to release event claim: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op; redis expires markers by TTL.
func (l *redisEventLedger) PurgeExpired(_ context.Context) (int64, error) {
	return 0, nil
}
