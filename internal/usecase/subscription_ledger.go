package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/membergate/membership-service/internal/domain/errors"
	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
)

// SubscriptionLedger is the single owner of member state transitions. Every
// mutation for a user runs under that user's lock, so racing callers re-read
// state and let the preconditions decide deterministically.
type SubscriptionLedger struct {
	memberRepo   repository.MemberRepository
	activityRepo repository.ActivityRepository
	periodDays   int
	locks        sync.Map // userID -> *sync.Mutex
	now          func() time.Time
	logger       *zap.Logger
}

// NewSubscriptionLedger creates a new subscription ledger instance
func NewSubscriptionLedger(
	memberRepo repository.MemberRepository,
	activityRepo repository.ActivityRepository,
	periodDays int,
	logger *zap.Logger,
) *SubscriptionLedger {
	if periodDays <= 0 {
		periodDays = 30
	}
	return &SubscriptionLedger{
		memberRepo:   memberRepo,
		activityRepo: activityRepo,
		periodDays:   periodDays,
		now:          time.Now,
		logger:       logger,
	}
}

func (l *SubscriptionLedger) lockUser(userID int64) func() {
	mu, _ := l.locks.LoadOrStore(userID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Extend grants one billing period of access paid via the given method.
// The new paid-through date is max(current expiry, today) + the period, so a
// mid-period renewal keeps the remaining days and a lapsed renewal starts
// from today. Whitelisted members are rejected: they have no payment
// schedule and a paid extension for one is an upstream mistake.
func (l *SubscriptionLedger) Extend(ctx context.Context, userID int64, method model.PaymentMethod, providerRef string) (*time.Time, error) {
	if method != model.PaymentMethodCard && method != model.PaymentMethodStars {
		return nil, fmt.Errorf("invalid payment method for extension: %s", method)
	}

	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	today := model.DateOf(l.now().UTC())

	if member == nil {
		member = &model.Member{
			UserID:        userID,
			Status:        model.MemberStatusExpired,
			PaymentMethod: model.PaymentMethodNone,
		}
		if err := l.memberRepo.Create(ctx, member); err != nil {
			return nil, fmt.Errorf("failed to create member: %w", err)
		}
		l.appendActivity(ctx, userID, model.ActionUserCreated, nil)
	}

	if member.Status == model.MemberStatusWhitelisted {
		l.logger.Warn("Rejected paid extension for whitelisted member",
			zap.Int64("user_id", userID))
		return nil, domainErrors.ErrMemberWhitelisted
	}

	base := today
	if member.NextPaymentDate != nil {
		current := model.DateOf(*member.NextPaymentDate)
		if current.After(base) {
			base = current
		}
	}
	next := base.AddDate(0, 0, l.periodDays)

	firstActivation := member.Status != model.MemberStatusActive

	member.Status = model.MemberStatusActive
	member.PaymentMethod = method
	member.NextPaymentDate = &next
	switch method {
	case model.PaymentMethodCard:
		member.CardPaymentID = &providerRef
	case model.PaymentMethodStars:
		member.StarsTransactionID = &providerRef
	}

	if err := l.memberRepo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	action := model.ActionSubscriptionRenewed
	if firstActivation {
		action = model.ActionSubscriptionStarted
	}
	l.appendActivity(ctx, userID, action, model.JSONB{
		"payment_method":    string(method),
		"next_payment_date": next.Format("2006-01-02"),
	})

	l.logger.Info("Subscription extended",
		zap.Int64("user_id", userID),
		zap.String("payment_method", string(method)),
		zap.Time("next_payment_date", next))

	return &next, nil
}

// ExtendManual grants days of access outside the payment flow, for support
// and goodwill adjustments. Whitelisted members are rejected like any other
// extension.
func (l *SubscriptionLedger) ExtendManual(ctx context.Context, userID int64, days int) (*time.Time, error) {
	if days <= 0 {
		return nil, fmt.Errorf("extension days must be positive, got %d", days)
	}

	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return nil, domainErrors.ErrMemberNotFound
	}
	if member.Status == model.MemberStatusWhitelisted {
		return nil, domainErrors.ErrMemberWhitelisted
	}

	today := model.DateOf(l.now().UTC())
	base := today
	if member.NextPaymentDate != nil {
		current := model.DateOf(*member.NextPaymentDate)
		if current.After(base) {
			base = current
		}
	}
	next := base.AddDate(0, 0, days)

	member.Status = model.MemberStatusActive
	member.NextPaymentDate = &next
	if err := l.memberRepo.Update(ctx, member); err != nil {
		return nil, fmt.Errorf("failed to update member: %w", err)
	}

	l.appendActivity(ctx, userID, model.ActionSubscriptionRenewed, model.JSONB{
		"manual":            true,
		"days":              days,
		"next_payment_date": next.Format("2006-01-02"),
	})

	l.logger.Info("Subscription manually extended",
		zap.Int64("user_id", userID),
		zap.Int("days", days),
		zap.Time("next_payment_date", next))

	return &next, nil
}

// ExpireOverdue marks an active member expired. If the member is no longer
// active when the lock is acquired (renewed in the meantime, whitelisted,
// already expired) the call is a no-op, not an error.
func (l *SubscriptionLedger) ExpireOverdue(ctx context.Context, userID int64, today time.Time) (bool, error) {
	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return false, domainErrors.ErrMemberNotFound
	}

	if member.Status != model.MemberStatusActive {
		return false, nil
	}
	if member.NextPaymentDate != nil && !model.DateOf(*member.NextPaymentDate).Before(model.DateOf(today)) {
		// Renewed while waiting for the lock.
		return false, nil
	}

	member.Status = model.MemberStatusExpired
	if err := l.memberRepo.Update(ctx, member); err != nil {
		return false, fmt.Errorf("failed to expire member: %w", err)
	}

	l.appendActivity(ctx, userID, model.ActionSubscriptionExpired, nil)

	l.logger.Info("Subscription expired", zap.Int64("user_id", userID))
	return true, nil
}

// Whitelist grants permanent access outside the billing cycle. The payment
// date is cleared so sweeps never pick the member up.
func (l *SubscriptionLedger) Whitelist(ctx context.Context, userID int64) error {
	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		member = &model.Member{UserID: userID}
		member.Status = model.MemberStatusWhitelisted
		member.PaymentMethod = model.PaymentMethodWhitelisted
		if err := l.memberRepo.Create(ctx, member); err != nil {
			return fmt.Errorf("failed to create member: %w", err)
		}
		l.appendActivity(ctx, userID, model.ActionUserCreated, nil)
	} else {
		member.Status = model.MemberStatusWhitelisted
		member.PaymentMethod = model.PaymentMethodWhitelisted
		member.NextPaymentDate = nil
		if err := l.memberRepo.Update(ctx, member); err != nil {
			return fmt.Errorf("failed to whitelist member: %w", err)
		}
	}

	l.appendActivity(ctx, userID, model.ActionUserWhitelisted, nil)

	l.logger.Info("Member whitelisted", zap.Int64("user_id", userID))
	return nil
}

// Unwhitelist returns a whitelisted member to the normal billing cycle as
// expired; the next successful payment reactivates them.
func (l *SubscriptionLedger) Unwhitelist(ctx context.Context, userID int64) error {
	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return domainErrors.ErrMemberNotFound
	}
	if member.Status != model.MemberStatusWhitelisted {
		return nil
	}

	member.Status = model.MemberStatusExpired
	member.PaymentMethod = model.PaymentMethodNone
	member.NextPaymentDate = nil
	if err := l.memberRepo.Update(ctx, member); err != nil {
		return fmt.Errorf("failed to unwhitelist member: %w", err)
	}

	l.logger.Info("Member removed from whitelist", zap.Int64("user_id", userID))
	return nil
}

// MarkReminded records that an expiry reminder went out, so the same sweep
// day never reminds twice.
func (l *SubscriptionLedger) MarkReminded(ctx context.Context, userID int64, when time.Time, daysRemaining int) error {
	unlock := l.lockUser(userID)
	defer unlock()

	member, err := l.memberRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get member: %w", err)
	}
	if member == nil {
		return domainErrors.ErrMemberNotFound
	}

	member.LastRemindedAt = &when
	if err := l.memberRepo.Update(ctx, member); err != nil {
		return fmt.Errorf("failed to mark member reminded: %w", err)
	}

	l.appendActivity(ctx, userID, model.ActionReminderSent, model.JSONB{
		"days_remaining": daysRemaining,
	})
	return nil
}

// Stats returns member counts per subscription status.
func (l *SubscriptionLedger) Stats(ctx context.Context) (map[model.MemberStatus]int64, error) {
	return l.memberRepo.CountByStatus(ctx)
}

// appendActivity logs to the audit trail. Audit failures are logged and
// swallowed so they never roll back a completed state change.
func (l *SubscriptionLedger) appendActivity(ctx context.Context, userID int64, action model.ActivityAction, details model.JSONB) {
	if err := l.activityRepo.Append(ctx, userID, action, details); err != nil {
		l.logger.Error("Failed to append activity log",
			zap.Int64("user_id", userID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
