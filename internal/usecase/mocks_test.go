package usecase

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/provider"
	"github.com/membergate/membership-service/internal/domain/repository"
)

// MockMemberRepository is a mock implementation of MemberRepository
type MockMemberRepository struct {
	mock.Mock
}

func (m *MockMemberRepository) Get(ctx context.Context, userID int64) (*model.Member, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Member), args.Error(1)
}

func (m *MockMemberRepository) Create(ctx context.Context, member *model.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) Update(ctx context.Context, member *model.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockMemberRepository) ListActiveExpiringOn(ctx context.Context, date time.Time) ([]*model.Member, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Member), args.Error(1)
}

func (m *MockMemberRepository) ListActiveOverdue(ctx context.Context, today time.Time) ([]*model.Member, error) {
	args := m.Called(ctx, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Member), args.Error(1)
}

func (m *MockMemberRepository) CountByStatus(ctx context.Context) (map[model.MemberStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.MemberStatus]int64), args.Error(1)
}

// MockActivityRepository is a mock implementation of ActivityRepository
type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) Append(ctx context.Context, userID int64, action model.ActivityAction, details model.JSONB) error {
	args := m.Called(ctx, userID, action, details)
	return args.Error(0)
}

func (m *MockActivityRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.ActivityLog, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ActivityLog), args.Error(1)
}

func (m *MockActivityRepository) CountByAction(ctx context.Context, userID int64, action model.ActivityAction) (int64, error) {
	args := m.Called(ctx, userID, action)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockActivityRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) Create(ctx context.Context, session *model.PaymentSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetByID(ctx context.Context, sessionID string) (*model.PaymentSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentSession), args.Error(1)
}

func (m *MockSessionRepository) GetPendingByReference(ctx context.Context, reference string) (*model.PaymentSession, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentSession), args.Error(1)
}

func (m *MockSessionRepository) GetByProviderLinkID(ctx context.Context, providerLinkID string) (*model.PaymentSession, error) {
	args := m.Called(ctx, providerLinkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PaymentSession), args.Error(1)
}

func (m *MockSessionRepository) Update(ctx context.Context, session *model.PaymentSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) ListStale(ctx context.Context, now time.Time) ([]*model.PaymentSession, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.PaymentSession), args.Error(1)
}

func (m *MockSessionRepository) AggregateRevenue(ctx context.Context) ([]*repository.RevenueRow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.RevenueRow), args.Error(1)
}

// MockEventLedger is a mock implementation of EventLedger
type MockEventLedger struct {
	mock.Mock
}

func (m *MockEventLedger) TryClaim(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventLedger) Release(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockEventLedger) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPaymentProvider is a mock implementation of provider.PaymentProvider
type MockPaymentProvider struct {
	mock.Mock
	name string
}

func (m *MockPaymentProvider) CreateSession(ctx context.Context, req *provider.CreateSessionRequest) (*provider.CreateSessionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.CreateSessionResponse), args.Error(1)
}

func (m *MockPaymentProvider) CancelSession(ctx context.Context, providerSessionID string) error {
	args := m.Called(ctx, providerSessionID)
	return args.Error(0)
}

func (m *MockPaymentProvider) GetProviderName() string {
	if m.name != "" {
		return m.name
	}
	return "mock"
}

// MockGroupManager is a mock implementation of group.Manager
type MockGroupManager struct {
	mock.Mock
}

func (m *MockGroupManager) RemoveUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockGroupManager) InviteUser(ctx context.Context, userID int64) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

// MockNotifier is a mock implementation of notifier.Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendReminder(ctx context.Context, userID int64, daysRemaining int, paymentURL string) error {
	args := m.Called(ctx, userID, daysRemaining, paymentURL)
	return args.Error(0)
}

func (m *MockNotifier) SendExpiryNotice(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockNotifier) SendPaymentConfirmation(ctx context.Context, userID int64, nextPaymentDate time.Time) error {
	args := m.Called(ctx, userID, nextPaymentDate)
	return args.Error(0)
}

func (m *MockNotifier) SendPaymentFailed(ctx context.Context, userID int64, reason string) error {
	args := m.Called(ctx, userID, reason)
	return args.Error(0)
}
