package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	domainErrors "github.com/membergate/membership-service/internal/domain/errors"
	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/provider"
	"github.com/membergate/membership-service/internal/domain/repository"
	"github.com/membergate/membership-service/internal/retry"
)

var testPlan = config.PlanConfig{
	ID:          "monthly",
	Name:        "Monthly membership",
	AmountCents: 999,
	Currency:    "USD",
	PeriodDays:  30,
	StarsAmount: 500,
}

type paymentFixture struct {
	card         *MockPaymentProvider
	invoice      *MockPaymentProvider
	sessionRepo  *MockSessionRepository
	activityRepo *MockActivityRepository
	memberRepo   *MockMemberRepository
	group        *MockGroupManager
	notify       *MockNotifier
	service      *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()

	f := &paymentFixture{
		card:         &MockPaymentProvider{name: "card"},
		invoice:      &MockPaymentProvider{name: "stars"},
		sessionRepo:  new(MockSessionRepository),
		activityRepo: new(MockActivityRepository),
		memberRepo:   new(MockMemberRepository),
		group:        new(MockGroupManager),
		notify:       new(MockNotifier),
	}

	// The settlement tail is best-effort; most tests don't care about it.
	f.group.On("InviteUser", mock.Anything, mock.Anything).Return("", nil).Maybe()
	f.notify.On("SendPaymentConfirmation", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	f.notify.On("SendPaymentFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	ledger := NewSubscriptionLedger(f.memberRepo, f.activityRepo, testPlan.PeriodDays, zap.NewNop())
	ledger.now = func() time.Time { return ledgerToday.Add(10 * time.Hour) }

	executor := retry.NewExecutor(retry.Config{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  2,
	}, zap.NewNop())

	f.service = NewPaymentService(f.card, f.invoice, f.sessionRepo, f.activityRepo, ledger, executor,
		f.group, f.notify, testPlan, zap.NewNop())
	return f
}

func TestPaymentService_CreateSessionCardPrimary(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	expires := time.Now().UTC().Add(24 * time.Hour)
	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(nil, nil)
	f.card.On("CreateSession", mock.Anything, mock.MatchedBy(func(req *provider.CreateSessionRequest) bool {
		return req.Reference == "sub_42_monthly" && req.AmountCents == 999 && req.Currency == "USD"
	})).Return(&provider.CreateSessionResponse{
		ProviderSessionID: "pl_1",
		PaymentURL:        "https://pay.example/pl_1",
		Status:            "active",
		ExpiresAt:         &expires,
	}, nil)
	f.sessionRepo.On("Create", ctx, mock.MatchedBy(func(s *model.PaymentSession) bool {
		return s.Provider == model.ProviderTypeCard &&
			s.Reference == "sub_42_monthly" &&
			s.ProviderLinkID == "pl_1" &&
			s.Status == model.SessionStatusPending
	})).Return(nil)

	handle, err := f.service.CreateSession(ctx, 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderTypeCard, handle.Provider)
	assert.Equal(t, "https://pay.example/pl_1", handle.PaymentURL)

	f.invoice.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
	f.sessionRepo.AssertExpectations(t)
}

func TestPaymentService_CreateSessionFallsBackToInvoice(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(nil, nil)
	// Card rail down hard: retried, then the invoice rail takes over.
	f.card.On("CreateSession", mock.Anything, mock.Anything).Return(nil, &provider.ProviderError{
		Code:      "API_ERROR",
		Message:   "upstream unavailable",
		Retryable: true,
	})
	f.invoice.On("CreateSession", mock.Anything, mock.MatchedBy(func(req *provider.CreateSessionRequest) bool {
		// Same reference, native pricing.
		return req.Reference == "sub_42_monthly" && req.AmountCents == 500 && req.Currency == "XTR"
	})).Return(&provider.CreateSessionResponse{
		ProviderSessionID: "inv_1",
		InvoicePayload:    "inv-payload",
		Status:            "sent",
	}, nil)
	f.sessionRepo.On("Create", ctx, mock.MatchedBy(func(s *model.PaymentSession) bool {
		return s.Provider == model.ProviderTypeStars &&
			s.Reference == "sub_42_monthly" &&
			s.Currency == "XTR" &&
			s.ExpiresAt == nil
	})).Return(nil)

	handle, err := f.service.CreateSession(ctx, 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.ProviderTypeStars, handle.Provider)
	assert.Equal(t, "inv-payload", handle.InvoicePayload)

	f.card.AssertNumberOfCalls(t, "CreateSession", 2)
	f.sessionRepo.AssertExpectations(t)
}

func TestPaymentService_CreateSessionBothRailsDown(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(nil, nil)
	f.card.On("CreateSession", mock.Anything, mock.Anything).Return(nil, &provider.ProviderError{
		Code: "API_ERROR", Message: "down", Retryable: true,
	})
	f.invoice.On("CreateSession", mock.Anything, mock.Anything).Return(nil, &provider.ProviderError{
		Code: "API_ERROR", Message: "also down", Retryable: true,
	})

	_, err := f.service.CreateSession(ctx, 42, "alice")
	require.Error(t, err)
	f.sessionRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_CreateSessionReusesPending(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	existing := &model.PaymentSession{
		SessionID:  "sess-1",
		UserID:     42,
		Reference:  "sub_42_monthly",
		Provider:   model.ProviderTypeCard,
		Status:     model.SessionStatusPending,
		PaymentURL: "https://pay.example/pl_1",
	}
	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(existing, nil)

	handle, err := f.service.CreateSession(ctx, 42, "alice")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", handle.SessionID)

	f.card.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestPaymentService_ConfirmPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	session := &model.PaymentSession{
		SessionID:      "sess-1",
		UserID:         42,
		Plan:           "monthly",
		Reference:      "sub_42_monthly",
		Provider:       model.ProviderTypeCard,
		Status:         model.SessionStatusPending,
		ProviderLinkID: "pl_1",
	}
	f.sessionRepo.On("GetByProviderLinkID", ctx, "pl_1").Return(session, nil)
	f.memberRepo.On("Get", ctx, int64(42)).Return(&model.Member{
		UserID: 42,
		Status: model.MemberStatusExpired,
	}, nil)
	f.memberRepo.On("Update", ctx, mock.MatchedBy(func(m *model.Member) bool {
		return m.Status == model.MemberStatusActive && m.PaymentMethod == model.PaymentMethodCard
	})).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionSubscriptionStarted, mock.Anything).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionPaymentSucceeded, mock.Anything).Return(nil)
	f.sessionRepo.On("Update", ctx, mock.MatchedBy(func(s *model.PaymentSession) bool {
		return s.Status == model.SessionStatusSucceeded && s.TransactionID != nil && *s.TransactionID == "txn_9"
	})).Return(nil)

	err := f.service.ConfirmPayment(ctx, &provider.WebhookEvent{
		EventID:        "evt_1",
		Kind:           provider.EventKindSucceeded,
		ProviderLinkID: "pl_1",
		TransactionID:  "txn_9",
	})
	require.NoError(t, err)
	f.sessionRepo.AssertExpectations(t)
	f.memberRepo.AssertExpectations(t)

	// A settled payment restores group access and confirms to the user.
	f.group.AssertCalled(t, "InviteUser", ctx, int64(42))
	f.notify.AssertCalled(t, "SendPaymentConfirmation", ctx, int64(42), ledgerToday.AddDate(0, 0, 30))
}

func TestPaymentService_ConfirmPaymentSurvivesNotificationFailure(t *testing.T) {
	f := &paymentFixture{
		card:         &MockPaymentProvider{name: "card"},
		invoice:      &MockPaymentProvider{name: "stars"},
		sessionRepo:  new(MockSessionRepository),
		activityRepo: new(MockActivityRepository),
		memberRepo:   new(MockMemberRepository),
		group:        new(MockGroupManager),
		notify:       new(MockNotifier),
	}
	ledger := NewSubscriptionLedger(f.memberRepo, f.activityRepo, testPlan.PeriodDays, zap.NewNop())
	ledger.now = func() time.Time { return ledgerToday.Add(10 * time.Hour) }
	executor := retry.NewExecutor(retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, zap.NewNop())
	f.service = NewPaymentService(f.card, f.invoice, f.sessionRepo, f.activityRepo, ledger, executor,
		f.group, f.notify, testPlan, zap.NewNop())

	ctx := context.Background()
	session := &model.PaymentSession{
		SessionID:      "sess-1",
		UserID:         42,
		Provider:       model.ProviderTypeCard,
		Status:         model.SessionStatusPending,
		ProviderLinkID: "pl_1",
	}
	f.sessionRepo.On("GetByProviderLinkID", ctx, "pl_1").Return(session, nil)
	f.memberRepo.On("Get", ctx, int64(42)).Return(&model.Member{UserID: 42, Status: model.MemberStatusExpired}, nil)
	f.memberRepo.On("Update", ctx, mock.Anything).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), mock.Anything, mock.Anything).Return(nil)
	f.sessionRepo.On("Update", ctx, mock.Anything).Return(nil)

	// Group and notifier both down: the extension must still stand.
	f.group.On("InviteUser", ctx, int64(42)).Return("", errors.New("group service unavailable"))
	f.notify.On("SendPaymentConfirmation", ctx, int64(42), mock.Anything).Return(errors.New("notifier down"))

	err := f.service.ConfirmPayment(ctx, &provider.WebhookEvent{
		EventID:        "evt_1",
		ProviderLinkID: "pl_1",
	})
	require.NoError(t, err)
	f.memberRepo.AssertExpectations(t)
}

func TestPaymentService_ConfirmPaymentDuplicateIsNoop(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	session := &model.PaymentSession{
		SessionID: "sess-1",
		UserID:    42,
		Status:    model.SessionStatusSucceeded,
	}
	f.sessionRepo.On("GetByProviderLinkID", ctx, "pl_1").Return(session, nil)

	err := f.service.ConfirmPayment(ctx, &provider.WebhookEvent{
		EventID:        "evt_2",
		ProviderLinkID: "pl_1",
	})
	require.NoError(t, err)

	f.memberRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.sessionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestPaymentService_ConfirmPaymentUnmatchedReference(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.sessionRepo.On("GetByProviderLinkID", ctx, "pl_404").Return(nil, nil)
	f.sessionRepo.On("GetPendingByReference", ctx, "sub_99_monthly").Return(nil, nil)

	err := f.service.ConfirmPayment(ctx, &provider.WebhookEvent{
		EventID:        "evt_3",
		ProviderLinkID: "pl_404",
		Reference:      "sub_99_monthly",
	})
	require.ErrorIs(t, err, domainErrors.ErrSessionNotFound)
}

func TestPaymentService_FailPayment(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	session := &model.PaymentSession{
		SessionID: "sess-1",
		UserID:    42,
		Reference: "sub_42_monthly",
		Status:    model.SessionStatusPending,
	}
	f.sessionRepo.On("GetPendingByReference", ctx, "sub_42_monthly").Return(session, nil)
	f.sessionRepo.On("Update", ctx, mock.MatchedBy(func(s *model.PaymentSession) bool {
		return s.Status == model.SessionStatusFailed
	})).Return(nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionPaymentFailed, mock.MatchedBy(func(d model.JSONB) bool {
		return d["reason"] == "card_declined"
	})).Return(nil)

	err := f.service.FailPayment(ctx, &provider.WebhookEvent{
		EventID:       "evt_4",
		Reference:     "sub_42_monthly",
		FailureReason: "card_declined",
	})
	require.NoError(t, err)

	// A failed payment never touches member state; the user hears about it.
	f.memberRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.notify.AssertCalled(t, "SendPaymentFailed", ctx, int64(42), "card_declined")
	f.sessionRepo.AssertExpectations(t)
}

func TestPaymentService_HandleRefundLogsOnly(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	session := &model.PaymentSession{
		SessionID: "sess-1",
		UserID:    42,
		Status:    model.SessionStatusSucceeded,
	}
	f.sessionRepo.On("GetByProviderLinkID", ctx, "pl_1").Return(session, nil)
	f.activityRepo.On("Append", ctx, int64(42), model.ActionPaymentRefunded, mock.Anything).Return(nil)

	err := f.service.HandleRefund(ctx, &provider.WebhookEvent{
		EventID:        "evt_5",
		ProviderLinkID: "pl_1",
		TransactionID:  "txn_9",
		AmountCents:    999,
	})
	require.NoError(t, err)

	f.sessionRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.memberRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	f.activityRepo.AssertExpectations(t)
}

func TestPaymentService_ExpireStaleSessions(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stale := []*model.PaymentSession{
		{SessionID: "s1", UserID: 1, Provider: model.ProviderTypeCard, ProviderLinkID: "pl_1", Status: model.SessionStatusPending},
		{SessionID: "s2", UserID: 2, Provider: model.ProviderTypeCard, ProviderLinkID: "pl_2", Status: model.SessionStatusPending},
	}
	f.sessionRepo.On("ListStale", ctx, now).Return(stale, nil)
	f.sessionRepo.On("Update", ctx, mock.MatchedBy(func(s *model.PaymentSession) bool {
		return s.Status == model.SessionStatusExpired
	})).Return(nil).Twice()
	f.card.On("CancelSession", ctx, "pl_1").Return(nil)
	f.card.On("CancelSession", ctx, "pl_2").Return(&provider.ProviderError{Code: "API_ERROR", Message: "gone"})

	expired, err := f.service.ExpireStaleSessions(ctx, now)
	require.NoError(t, err)
	// Cancellation is best-effort; both sessions still expire.
	assert.Equal(t, 2, expired)
	f.sessionRepo.AssertExpectations(t)
	f.card.AssertExpectations(t)
}

func TestPaymentService_Revenue(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	f.sessionRepo.On("AggregateRevenue", ctx).Return([]*repository.RevenueRow{
		{Provider: model.ProviderTypeCard, Count: 3, TotalCents: 2997},
		{Provider: model.ProviderTypeStars, Count: 1, TotalCents: 500},
	}, nil)

	stats, err := f.service.Revenue(ctx)
	require.NoError(t, err)

	card := stats.Providers[model.ProviderTypeCard]
	assert.EqualValues(t, 3, card.Count)
	assert.True(t, card.Total.Equal(decimal.NewFromFloat(29.97)), "card total %s", card.Total)
	assert.True(t, card.Average.Equal(decimal.NewFromFloat(9.99)), "card average %s", card.Average)

	assert.True(t, stats.Total.Equal(decimal.NewFromFloat(34.97)), "total %s", stats.Total)
	assert.True(t, stats.CardShare.GreaterThan(decimal.NewFromFloat(0.85)))
	assert.True(t, stats.CardShare.LessThan(decimal.NewFromInt(1)))
}
