package retry

import (
	"context"
	"errors"
	"net"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/domain/provider"
)

// Config controls the retry cadence for outbound calls.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter randomizes each delay by +/-10% to avoid synchronized retry
	// storms across instances.
	Jitter bool
}

// DefaultConfig returns the standard cadence for payment and group API calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2,
		Jitter:      true,
	}
}

// Executor wraps outbound operations with bounded exponential backoff.
// Only transient failures are retried; validation and auth failures
// propagate immediately. The last failure is always returned to the caller.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// NewExecutor creates a retry executor.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Executor{cfg: cfg, logger: logger}
}

// Do runs fn, retrying transient failures up to MaxAttempts total attempts.
func (e *Executor) Do(ctx context.Context, opName string, fn func(ctx context.Context) error) error {
	attempt := 0

	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BaseDelay
	b.MaxInterval = e.cfg.MaxDelay
	b.Multiplier = e.cfg.Multiplier
	b.MaxElapsedTime = 0
	if e.cfg.Jitter {
		b.RandomizationFactor = 0.1
	} else {
		b.RandomizationFactor = 0
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(e.cfg.MaxAttempts-1)), ctx)

	notify := func(err error, next time.Duration) {
		e.logger.Warn("transient failure, retrying",
			zap.String("operation", opName),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", next),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		e.logger.Error("operation failed",
			zap.String("operation", opName),
			zap.Int("attempts", attempt),
			zap.Error(err))
		return err
	}
	return nil
}

// IsTransient reports whether the error belongs to a failure class worth
// retrying: network errors, timeouts, and provider rate limits or outages.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var provErr *provider.ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
