package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/repository"
	"github.com/membergate/membership-service/internal/infrastructure/group"
	"github.com/membergate/membership-service/internal/infrastructure/notifier"
)

// Audit entries older than this are trimmed by the daily sweep.
const activityRetention = 90 * 24 * time.Hour

// SweepReport summarizes one reconciliation run.
type SweepReport struct {
	RemindersSent   int
	MembersExpired  int
	SessionsExpired int
	EventsPurged    int64
	ActivityPurged  int64
}

// Reconciler runs the daily subscription sweep: expiry reminders, overdue
// expirations with group removal, stale session cleanup, and ledger
// retention. Each member is one unit of work; individual failures are
// collected and never abort the sweep.
type Reconciler struct {
	memberRepo   repository.MemberRepository
	activityRepo repository.ActivityRepository
	eventLedger  repository.EventLedger
	ledger       *SubscriptionLedger
	payments     *PaymentService
	group        group.Manager
	notifier     notifier.Notifier
	reminderDays []int
	logger       *zap.Logger
}

// NewReconciler creates a new reconciler instance
func NewReconciler(
	memberRepo repository.MemberRepository,
	activityRepo repository.ActivityRepository,
	eventLedger repository.EventLedger,
	ledger *SubscriptionLedger,
	payments *PaymentService,
	groupManager group.Manager,
	notify notifier.Notifier,
	reminderDays []int,
	logger *zap.Logger,
) *Reconciler {
	if len(reminderDays) == 0 {
		reminderDays = []int{3, 1}
	}
	return &Reconciler{
		memberRepo:   memberRepo,
		activityRepo: activityRepo,
		eventLedger:  eventLedger,
		ledger:       ledger,
		payments:     payments,
		group:        groupManager,
		notifier:     notify,
		reminderDays: reminderDays,
		logger:       logger,
	}
}

// RunDaily executes the full sweep for the given calendar day. The returned
// error aggregates per-member failures; the report counts what succeeded.
func (r *Reconciler) RunDaily(ctx context.Context, today time.Time) (*SweepReport, error) {
	today = model.DateOf(today)
	report := &SweepReport{}
	var errs error

	r.logger.Info("Starting daily reconciliation", zap.Time("date", today))

	errs = multierr.Append(errs, r.sendReminders(ctx, today, report))
	errs = multierr.Append(errs, r.expireOverdue(ctx, today, report))

	if expired, err := r.payments.ExpireStaleSessions(ctx, today); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stale session sweep: %w", err))
	} else {
		report.SessionsExpired = expired
	}

	if purged, err := r.eventLedger.PurgeExpired(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("event ledger purge: %w", err))
	} else {
		report.EventsPurged = purged
	}

	if purged, err := r.activityRepo.PurgeOlderThan(ctx, today.Add(-activityRetention)); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("activity purge: %w", err))
	} else {
		report.ActivityPurged = purged
	}

	r.logStats(ctx, report)

	return report, errs
}

// sendReminders notifies active members expiring in each configured window.
// A member already reminded today is skipped, so overlapping windows and
// re-runs never double-send.
func (r *Reconciler) sendReminders(ctx context.Context, today time.Time, report *SweepReport) error {
	var errs error

	for _, days := range r.reminderDays {
		target := today.AddDate(0, 0, days)

		members, err := r.memberRepo.ListActiveExpiringOn(ctx, target)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list members expiring in %d days: %w", days, err))
			continue
		}

		for _, member := range members {
			if err := ctx.Err(); err != nil {
				return multierr.Append(errs, err)
			}

			if member.LastRemindedAt != nil && model.DateOf(*member.LastRemindedAt).Equal(today) {
				continue
			}

			if err := r.remindMember(ctx, member, days, today); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("remind user %d: %w", member.UserID, err))
				continue
			}
			report.RemindersSent++
		}
	}
	return errs
}

func (r *Reconciler) remindMember(ctx context.Context, member *model.Member, daysRemaining int, today time.Time) error {
	// Attach a ready payment link when one can be made; the reminder still
	// goes out without it.
	paymentURL := ""
	username := ""
	if member.Username != nil {
		username = *member.Username
	}
	if handle, err := r.payments.CreateSession(ctx, member.UserID, username); err != nil {
		r.logger.Warn("Could not attach payment link to reminder",
			zap.Int64("user_id", member.UserID),
			zap.Error(err))
	} else {
		paymentURL = handle.PaymentURL
	}

	if err := r.notifier.SendReminder(ctx, member.UserID, daysRemaining, paymentURL); err != nil {
		return err
	}

	if err := r.ledger.MarkReminded(ctx, member.UserID, today, daysRemaining); err != nil {
		return err
	}

	r.logger.Info("Expiry reminder sent",
		zap.Int64("user_id", member.UserID),
		zap.Int("days_remaining", daysRemaining))
	return nil
}

// expireOverdue expires active members whose paid-through date has passed,
// removes them from the group, and notifies them.
func (r *Reconciler) expireOverdue(ctx context.Context, today time.Time, report *SweepReport) error {
	members, err := r.memberRepo.ListActiveOverdue(ctx, today)
	if err != nil {
		return fmt.Errorf("list overdue members: %w", err)
	}

	var errs error
	for _, member := range members {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}

		if err := r.expireMember(ctx, member.UserID, today); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire user %d: %w", member.UserID, err))
			continue
		}
		report.MembersExpired++
	}
	return errs
}

func (r *Reconciler) expireMember(ctx context.Context, userID int64, today time.Time) error {
	expired, err := r.ledger.ExpireOverdue(ctx, userID, today)
	if err != nil {
		return err
	}
	if !expired {
		// Renewed or whitelisted since the listing; nothing to revoke.
		return nil
	}

	if err := r.group.RemoveUser(ctx, userID); err != nil {
		return fmt.Errorf("group removal: %w", err)
	}
	if err := r.activityRepo.Append(ctx, userID, model.ActionUserRemovedFromGroup, nil); err != nil {
		r.logger.Error("Failed to append activity log",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	if err := r.notifier.SendExpiryNotice(ctx, userID); err != nil {
		// Access is already revoked; a lost notice is not worth failing the member.
		r.logger.Warn("Failed to send expiry notice",
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	return nil
}

func (r *Reconciler) logStats(ctx context.Context, report *SweepReport) {
	counts, err := r.ledger.Stats(ctx)
	if err != nil {
		r.logger.Warn("Failed to collect subscription stats", zap.Error(err))
		return
	}

	r.logger.Info("Daily reconciliation finished",
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("members_expired", report.MembersExpired),
		zap.Int("sessions_expired", report.SessionsExpired),
		zap.Int64("events_purged", report.EventsPurged),
		zap.Int64("activity_purged", report.ActivityPurged),
		zap.Int64("active", counts[model.MemberStatusActive]),
		zap.Int64("expired", counts[model.MemberStatusExpired]),
		zap.Int64("whitelisted", counts[model.MemberStatusWhitelisted]))
}
