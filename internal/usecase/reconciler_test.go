package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/retry"
)

type reconcilerFixture struct {
	memberRepo   *MockMemberRepository
	activityRepo *MockActivityRepository
	sessionRepo  *MockSessionRepository
	eventLedger  *MockEventLedger
	group        *MockGroupManager
	notifier     *MockNotifier
	card         *MockPaymentProvider
	reconciler   *Reconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()

	f := &reconcilerFixture{
		memberRepo:   new(MockMemberRepository),
		activityRepo: new(MockActivityRepository),
		sessionRepo:  new(MockSessionRepository),
		eventLedger:  new(MockEventLedger),
		group:        new(MockGroupManager),
		notifier:     new(MockNotifier),
		card:         &MockPaymentProvider{name: "card"},
	}

	ledger := NewSubscriptionLedger(f.memberRepo, f.activityRepo, 30, zap.NewNop())
	ledger.now = func() time.Time { return ledgerToday.Add(9 * time.Hour) }

	executor := retry.NewExecutor(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, zap.NewNop())
	payments := NewPaymentService(f.card, &MockPaymentProvider{name: "stars"}, f.sessionRepo, f.activityRepo, ledger, executor,
		f.group, f.notifier,
		config.PlanConfig{ID: "monthly", Name: "Monthly", AmountCents: 999, Currency: "USD", PeriodDays: 30}, zap.NewNop())

	f.reconciler = NewReconciler(f.memberRepo, f.activityRepo, f.eventLedger, ledger, payments,
		f.group, f.notifier, []int{3, 1}, zap.NewNop())
	return f
}

// expectHousekeeping wires the sweep steps that run after reminders and
// expirations.
func (f *reconcilerFixture) expectHousekeeping(ctx context.Context, today time.Time) {
	f.sessionRepo.On("ListStale", ctx, today).Return([]*model.PaymentSession{}, nil)
	f.eventLedger.On("PurgeExpired", ctx).Return(int64(0), nil)
	f.activityRepo.On("PurgeOlderThan", ctx, mock.Anything).Return(int64(0), nil)
	f.memberRepo.On("CountByStatus", ctx).Return(map[model.MemberStatus]int64{}, nil)
}

func TestReconciler_RunDailySendsReminders(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	expiring := &model.Member{
		UserID:          42,
		Status:          model.MemberStatusActive,
		PaymentMethod:   model.PaymentMethodCard,
		NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, 3)),
	}
	f.memberRepo.On("ListActiveExpiringOn", ctx, ledgerToday.AddDate(0, 0, 3)).Return([]*model.Member{expiring}, nil)
	f.memberRepo.On("ListActiveExpiringOn", ctx, ledgerToday.AddDate(0, 0, 1)).Return([]*model.Member{}, nil)
	f.memberRepo.On("ListActiveOverdue", ctx, ledgerToday).Return([]*model.Member{}, nil)

	// Reminder reuses the open payment session for its link.
	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(&model.PaymentSession{
		SessionID:  "sess-1",
		UserID:     42,
		Reference:  "sub_42_monthly",
		Provider:   model.ProviderTypeCard,
		Status:     model.SessionStatusPending,
		PaymentURL: "https://pay.example/pl_1",
	}, nil)
	f.notifier.On("SendReminder", ctx, int64(42), 3, "https://pay.example/pl_1").Return(nil)

	f.memberRepo.On("Get", ctx, int64(42)).Return(expiring, nil)
	f.memberRepo.On("Update", ctx, mock.MatchedBy(func(m *model.Member) bool {
		return m.LastRemindedAt != nil && m.LastRemindedAt.Equal(ledgerToday)
	})).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionReminderSent, mock.Anything).Return(nil)

	f.expectHousekeeping(ctx, ledgerToday)

	report, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RemindersSent)
	f.notifier.AssertExpectations(t)
}

func TestReconciler_ReminderDedupeSameDay(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	alreadyReminded := &model.Member{
		UserID:          42,
		Status:          model.MemberStatusActive,
		NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, 1)),
		LastRemindedAt:  dateptr(ledgerToday),
	}
	f.memberRepo.On("ListActiveExpiringOn", ctx, ledgerToday.AddDate(0, 0, 3)).Return([]*model.Member{}, nil)
	f.memberRepo.On("ListActiveExpiringOn", ctx, ledgerToday.AddDate(0, 0, 1)).Return([]*model.Member{alreadyReminded}, nil)
	f.memberRepo.On("ListActiveOverdue", ctx, ledgerToday).Return([]*model.Member{}, nil)
	f.expectHousekeeping(ctx, ledgerToday)

	report, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RemindersSent)
	f.notifier.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_ExpiresOverdueMembers(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	overdue := &model.Member{
		UserID:          42,
		Status:          model.MemberStatusActive,
		PaymentMethod:   model.PaymentMethodCard,
		NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, -1)),
	}
	f.memberRepo.On("ListActiveExpiringOn", ctx, mock.Anything).Return([]*model.Member{}, nil)
	f.memberRepo.On("ListActiveOverdue", ctx, ledgerToday).Return([]*model.Member{overdue}, nil)

	f.memberRepo.On("Get", ctx, int64(42)).Return(overdue, nil)
	f.memberRepo.On("Update", ctx, mock.MatchedBy(func(m *model.Member) bool {
		return m.Status == model.MemberStatusExpired
	})).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionSubscriptionExpired, mock.Anything).Return(nil)
	f.group.On("RemoveUser", ctx, int64(42)).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionUserRemovedFromGroup, mock.Anything).Return(nil)
	f.notifier.On("SendExpiryNotice", ctx, int64(42)).Return(nil)

	f.expectHousekeeping(ctx, ledgerToday)

	report, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.NoError(t, err)
	assert.Equal(t, 1, report.MembersExpired)
	f.group.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestReconciler_PerMemberFailureIsolation(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	broken := &model.Member{
		UserID:          1,
		Status:          model.MemberStatusActive,
		NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, -2)),
	}
	healthy := &model.Member{
		UserID:          2,
		Status:          model.MemberStatusActive,
		NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, -1)),
	}
	f.memberRepo.On("ListActiveExpiringOn", ctx, mock.Anything).Return([]*model.Member{}, nil)
	f.memberRepo.On("ListActiveOverdue", ctx, ledgerToday).Return([]*model.Member{broken, healthy}, nil)

	f.memberRepo.On("Get", ctx, int64(1)).Return(broken, nil)
	f.memberRepo.On("Get", ctx, int64(2)).Return(healthy, nil)
	f.memberRepo.On("Update", ctx, mock.Anything).Return(nil)
	f.activityRepo.On("Append", ctx, mock.Anything, model.ActionSubscriptionExpired, mock.Anything).Return(nil)
	f.activityRepo.On("Append", ctx, mock.Anything, model.ActionUserRemovedFromGroup, mock.Anything).Return(nil)

	// Group removal fails for the first member only.
	f.group.On("RemoveUser", ctx, int64(1)).Return(errors.New("group api down"))
	f.group.On("RemoveUser", ctx, int64(2)).Return(nil)
	f.notifier.On("SendExpiryNotice", ctx, int64(2)).Return(nil)

	f.expectHousekeeping(ctx, ledgerToday)

	report, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire user 1")

	// The second member was still processed.
	assert.Equal(t, 1, report.MembersExpired)
	f.group.AssertExpectations(t)
}

func TestReconciler_SecondRunSameDayIsQuiet(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	// Everything already settled: nothing expiring, nothing overdue.
	f.memberRepo.On("ListActiveExpiringOn", ctx, mock.Anything).Return([]*model.Member{}, nil)
	f.memberRepo.On("ListActiveOverdue", ctx, ledgerToday).Return([]*model.Member{}, nil)
	f.expectHousekeeping(ctx, ledgerToday)

	report, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RemindersSent)
	assert.Equal(t, 0, report.MembersExpired)
	f.notifier.AssertNotCalled(t, "SendExpiryNotice", mock.Anything, mock.Anything)
}

func TestReconciler_ContextCancellationStopsSweep(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	members := []*model.Member{
		{UserID: 1, Status: model.MemberStatusActive, NextPaymentDate: dateptr(ledgerToday.AddDate(0, 0, 3))},
	}
	f.memberRepo.On("ListActiveExpiringOn", mock.Anything, mock.Anything).Return(members, nil)
	f.memberRepo.On("ListActiveOverdue", mock.Anything, mock.Anything).Return(members, nil)
	f.sessionRepo.On("ListStale", mock.Anything, mock.Anything).Return([]*model.PaymentSession{}, nil)
	f.eventLedger.On("PurgeExpired", mock.Anything).Return(int64(0), nil)
	f.activityRepo.On("PurgeOlderThan", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.memberRepo.On("CountByStatus", mock.Anything).Return(map[model.MemberStatus]int64{}, nil)

	_, err := f.reconciler.RunDaily(ctx, ledgerToday)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// No member was touched after cancellation.
	f.notifier.AssertNotCalled(t, "SendReminder", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.group.AssertNotCalled(t, "RemoveUser", mock.Anything, mock.Anything)
}
