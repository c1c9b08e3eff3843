package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/membergate/membership-service/internal/config"
	domainErrors "github.com/membergate/membership-service/internal/domain/errors"
	"github.com/membergate/membership-service/internal/domain/model"
	"github.com/membergate/membership-service/internal/domain/provider"
	"github.com/membergate/membership-service/internal/domain/repository"
	"github.com/membergate/membership-service/internal/infrastructure/group"
	"github.com/membergate/membership-service/internal/infrastructure/notifier"
	"github.com/membergate/membership-service/internal/retry"
)

const cardLinkLifetime = 24 * time.Hour

// SessionHandle is what a caller needs to send the user to payment.
type SessionHandle struct {
	SessionID      string             `json:"session_id"`
	Provider       model.ProviderType `json:"provider"`
	PaymentURL     string             `json:"payment_url,omitempty"`
	InvoicePayload string             `json:"invoice_payload,omitempty"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
}

// ProviderRevenue aggregates succeeded payments for one provider.
type ProviderRevenue struct {
	Count   int64           `json:"count"`
	Total   decimal.Decimal `json:"total"`
	Average decimal.Decimal `json:"average"`
}

// RevenueStats is the per-provider revenue breakdown.
type RevenueStats struct {
	Providers map[model.ProviderType]ProviderRevenue `json:"providers"`
	Total     decimal.Decimal                        `json:"total"`
	CardShare decimal.Decimal                        `json:"card_share"` // 0..1 fraction of revenue via card
}

// PaymentService creates payment sessions across both rails and settles them
// from webhook events. The card-link rail is primary; each creation attempt
// is retried on transient failure before falling back to a native invoice.
type PaymentService struct {
	cardProvider    provider.PaymentProvider
	invoiceProvider provider.PaymentProvider
	sessionRepo     repository.SessionRepository
	activityRepo    repository.ActivityRepository
	ledger          *SubscriptionLedger
	executor        *retry.Executor
	groupManager    group.Manager
	notify          notifier.Notifier
	plan            config.PlanConfig
	logger          *zap.Logger
}

// NewPaymentService creates a new payment service instance
func NewPaymentService(
	cardProvider provider.PaymentProvider,
	invoiceProvider provider.PaymentProvider,
	sessionRepo repository.SessionRepository,
	activityRepo repository.ActivityRepository,
	ledger *SubscriptionLedger,
	executor *retry.Executor,
	groupManager group.Manager,
	notify notifier.Notifier,
	plan config.PlanConfig,
	logger *zap.Logger,
) *PaymentService {
	return &PaymentService{
		cardProvider:    cardProvider,
		invoiceProvider: invoiceProvider,
		sessionRepo:     sessionRepo,
		activityRepo:    activityRepo,
		ledger:          ledger,
		executor:        executor,
		groupManager:    groupManager,
		notify:          notify,
		plan:            plan,
		logger:          logger,
	}
}

// CreateSession opens a payment session for the user. The card-link provider
// is tried first with retries; if it stays unavailable the native invoice
// provider takes over with the same reference, so the eventual webhook
// settles whichever rail the user completed.
func (s *PaymentService) CreateSession(ctx context.Context, userID int64, username string) (*SessionHandle, error) {
	reference := model.SessionReference(userID, s.plan.ID)

	// Reuse an open session instead of stacking links for the same user.
	if existing, err := s.sessionRepo.GetPendingByReference(ctx, reference); err != nil {
		return nil, fmt.Errorf("failed to check pending sessions: %w", err)
	} else if existing != nil {
		s.logger.Info("Reusing pending payment session",
			zap.Int64("user_id", userID),
			zap.String("session_id", existing.SessionID))
		return handleFromSession(existing), nil
	}

	req := &provider.CreateSessionRequest{
		UserID:      userID,
		Username:    username,
		AmountCents: s.plan.AmountCents,
		Currency:    s.plan.Currency,
		Reference:   reference,
		PlanID:      s.plan.ID,
		PlanName:    s.plan.Name,
		ExpiresIn:   cardLinkLifetime,
	}

	var resp *provider.CreateSessionResponse
	err := s.executor.Do(ctx, "cardlink.create_session", func(ctx context.Context) error {
		var createErr error
		resp, createErr = s.cardProvider.CreateSession(ctx, req)
		return createErr
	})

	providerType := model.ProviderTypeCard
	if err != nil {
		s.logger.Warn("Card-link session creation failed, falling back to invoice",
			zap.Int64("user_id", userID),
			zap.Error(err))

		invoiceReq := *req
		if s.plan.StarsAmount > 0 {
			invoiceReq.AmountCents = s.plan.StarsAmount
			invoiceReq.Currency = "XTR"
		}
		fallbackErr := s.executor.Do(ctx, "invoice.create_session", func(ctx context.Context) error {
			var createErr error
			resp, createErr = s.invoiceProvider.CreateSession(ctx, &invoiceReq)
			return createErr
		})
		if fallbackErr != nil {
			return nil, fmt.Errorf("both payment rails unavailable: card: %v, invoice: %w", err, fallbackErr)
		}
		providerType = model.ProviderTypeStars
	}

	session := &model.PaymentSession{
		SessionID:      uuid.New().String(),
		UserID:         userID,
		Plan:           s.plan.ID,
		Reference:      reference,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		Provider:       providerType,
		Status:         model.SessionStatusPending,
		ProviderLinkID: resp.ProviderSessionID,
		PaymentURL:     resp.PaymentURL,
		InvoicePayload: resp.InvoicePayload,
		ExpiresAt:      resp.ExpiresAt,
	}
	if providerType == model.ProviderTypeStars {
		session.AmountCents = s.plan.StarsAmount
		session.Currency = "XTR"
		session.ExpiresAt = nil // platform owns invoice lifecycle
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist payment session: %w", err)
	}

	s.logger.Info("Payment session created",
		zap.Int64("user_id", userID),
		zap.String("session_id", session.SessionID),
		zap.String("provider", string(providerType)),
		zap.String("reference", reference))

	return handleFromSession(session), nil
}

func handleFromSession(session *model.PaymentSession) *SessionHandle {
	return &SessionHandle{
		SessionID:      session.SessionID,
		Provider:       session.Provider,
		PaymentURL:     session.PaymentURL,
		InvoicePayload: session.InvoicePayload,
		ExpiresAt:      session.ExpiresAt,
	}
}

// matchSession finds the session a webhook event refers to, by provider link
// id first, then by reference.
func (s *PaymentService) matchSession(ctx context.Context, ev *provider.WebhookEvent) (*model.PaymentSession, error) {
	if ev.ProviderLinkID != "" {
		session, err := s.sessionRepo.GetByProviderLinkID(ctx, ev.ProviderLinkID)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}
	if ev.Reference != "" {
		session, err := s.sessionRepo.GetPendingByReference(ctx, ev.Reference)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}
	return nil, domainErrors.ErrSessionNotFound
}

// ConfirmPayment settles a succeeded payment event: the session becomes
// succeeded and the member's subscription is extended. An unmatched
// reference returns ErrSessionNotFound for the caller to acknowledge.
func (s *PaymentService) ConfirmPayment(ctx context.Context, ev *provider.WebhookEvent) error {
	session, err := s.matchSession(ctx, ev)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		s.logger.Info("Payment already settled, ignoring duplicate confirmation",
			zap.String("session_id", session.SessionID),
			zap.String("event_id", ev.EventID))
		return nil
	}

	method := model.PaymentMethodCard
	if session.Provider == model.ProviderTypeStars {
		method = model.PaymentMethodStars
	}

	providerRef := ev.TransactionID
	if providerRef == "" {
		providerRef = session.ProviderLinkID
	}

	nextDate, err := s.ledger.Extend(ctx, session.UserID, method, providerRef)
	if err != nil {
		return fmt.Errorf("failed to extend subscription: %w", err)
	}

	session.Status = model.SessionStatusSucceeded
	if ev.TransactionID != "" {
		session.TransactionID = &ev.TransactionID
	}
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := s.activityRepo.Append(ctx, session.UserID, model.ActionPaymentSucceeded, model.JSONB{
		"session_id":   session.SessionID,
		"provider":     string(session.Provider),
		"amount_cents": session.AmountCents,
	}); err != nil {
		s.logger.Error("Failed to append activity log", zap.Error(err))
	}

	// Restore group access and tell the user. Both are best-effort: the
	// subscription is already extended, and the daily sweep never removes a
	// member whose paid-through date is in the future.
	if _, err := s.groupManager.InviteUser(ctx, session.UserID); err != nil {
		s.logger.Warn("Failed to invite user back to group",
			zap.Int64("user_id", session.UserID),
			zap.Error(err))
	}
	if nextDate != nil {
		if err := s.notify.SendPaymentConfirmation(ctx, session.UserID, *nextDate); err != nil {
			s.logger.Warn("Failed to send payment confirmation",
				zap.Int64("user_id", session.UserID),
				zap.Error(err))
		}
	}

	s.logger.Info("Payment confirmed",
		zap.Int64("user_id", session.UserID),
		zap.String("session_id", session.SessionID),
		zap.String("provider", string(session.Provider)),
		zap.Timep("next_payment_date", nextDate))

	return nil
}

// FailPayment records a failed payment attempt. Member state is untouched;
// the subscription simply does not get extended.
func (s *PaymentService) FailPayment(ctx context.Context, ev *provider.WebhookEvent) error {
	session, err := s.matchSession(ctx, ev)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return nil
	}

	session.Status = model.SessionStatusFailed
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	if err := s.activityRepo.Append(ctx, session.UserID, model.ActionPaymentFailed, model.JSONB{
		"session_id": session.SessionID,
		"reason":     ev.FailureReason,
	}); err != nil {
		s.logger.Error("Failed to append activity log", zap.Error(err))
	}

	if err := s.notify.SendPaymentFailed(ctx, session.UserID, ev.FailureReason); err != nil {
		s.logger.Warn("Failed to send payment failure notice",
			zap.Int64("user_id", session.UserID),
			zap.Error(err))
	}

	s.logger.Info("Payment failed",
		zap.Int64("user_id", session.UserID),
		zap.String("session_id", session.SessionID),
		zap.String("reason", ev.FailureReason))

	return nil
}

// HandleRefund records a refund in the audit trail. Access revocation for
// refunds is a manual decision, so no member state changes here.
func (s *PaymentService) HandleRefund(ctx context.Context, ev *provider.WebhookEvent) error {
	session, err := s.matchSession(ctx, ev)
	if err != nil {
		return err
	}

	if err := s.activityRepo.Append(ctx, session.UserID, model.ActionPaymentRefunded, model.JSONB{
		"session_id":     session.SessionID,
		"transaction_id": ev.TransactionID,
		"amount_cents":   ev.AmountCents,
	}); err != nil {
		s.logger.Error("Failed to append activity log", zap.Error(err))
	}

	s.logger.Info("Refund recorded",
		zap.Int64("user_id", session.UserID),
		zap.String("session_id", session.SessionID))

	return nil
}

// ExpireLink marks the session for an expired payment link. Pending sessions
// move to expired; settled ones are left alone.
func (s *PaymentService) ExpireLink(ctx context.Context, ev *provider.WebhookEvent) error {
	session, err := s.matchSession(ctx, ev)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return nil
	}

	session.Status = model.SessionStatusExpired
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	s.logger.Info("Payment link expired",
		zap.Int64("user_id", session.UserID),
		zap.String("session_id", session.SessionID))
	return nil
}

// ExpireStaleSessions moves pending card sessions past their expiry to
// expired and cancels the provider links best-effort. Returns how many
// sessions were expired.
func (s *PaymentService) ExpireStaleSessions(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.sessionRepo.ListStale(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale sessions: %w", err)
	}

	expired := 0
	for _, session := range stale {
		session.Status = model.SessionStatusExpired
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			s.logger.Error("Failed to expire stale session",
				zap.String("session_id", session.SessionID),
				zap.Error(err))
			continue
		}
		expired++

		if session.Provider == model.ProviderTypeCard && session.ProviderLinkID != "" {
			if err := s.cardProvider.CancelSession(ctx, session.ProviderLinkID); err != nil {
				s.logger.Warn("Failed to cancel stale payment link",
					zap.String("session_id", session.SessionID),
					zap.Error(err))
			}
		}
	}

	if expired > 0 {
		s.logger.Info("Expired stale payment sessions", zap.Int("count", expired))
	}
	return expired, nil
}

// Revenue returns per-provider revenue aggregates over succeeded sessions.
// Amounts are reported in major currency units.
func (s *PaymentService) Revenue(ctx context.Context) (*RevenueStats, error) {
	rows, err := s.sessionRepo.AggregateRevenue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}

	cents := decimal.NewFromInt(100)
	stats := &RevenueStats{
		Providers: make(map[model.ProviderType]ProviderRevenue, len(rows)),
		Total:     decimal.Zero,
		CardShare: decimal.Zero,
	}

	var cardTotal decimal.Decimal
	for _, row := range rows {
		total := decimal.NewFromInt(row.TotalCents).Div(cents)
		avg := decimal.Zero
		if row.Count > 0 {
			avg = total.Div(decimal.NewFromInt(row.Count)).Round(2)
		}
		stats.Providers[row.Provider] = ProviderRevenue{
			Count:   row.Count,
			Total:   total,
			Average: avg,
		}
		stats.Total = stats.Total.Add(total)
		if row.Provider == model.ProviderTypeCard {
			cardTotal = total
		}
	}

	if stats.Total.IsPositive() {
		stats.CardShare = cardTotal.Div(stats.Total).Round(4)
	}
	return stats, nil
}
