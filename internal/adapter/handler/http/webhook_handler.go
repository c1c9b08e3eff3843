package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	domainErrors "github.com/membergate/membership-service/internal/domain/errors"
	"github.com/membergate/membership-service/internal/domain/provider"
	"github.com/membergate/membership-service/internal/domain/repository"
	"github.com/membergate/membership-service/internal/usecase"
	"github.com/membergate/membership-service/internal/webhook"
)

const (
	// HeaderTimestamp carries the provider's unix send time, signed together
	// with the body.
	HeaderTimestamp = "X-Webhook-Timestamp"
	// HeaderSignature carries the hex HMAC-SHA256 digest.
	HeaderSignature = "X-Webhook-Signature"
)

// webhookEnvelope is the provider's wire format.
type webhookEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Reference     string `json:"reference"`
		LinkID        string `json:"link_id"`
		TransactionID string `json:"transaction_id"`
		Provider      string `json:"provider"`
		Amount        int64  `json:"amount"`
		Currency      string `json:"currency"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

// WebhookHandler receives payment provider notifications.
type WebhookHandler struct {
	verifier    *webhook.Verifier
	eventLedger repository.EventLedger
	payments    *usecase.PaymentService
	logger      *zap.Logger
}

// NewWebhookHandler creates a new webhook handler instance
func NewWebhookHandler(
	verifier *webhook.Verifier,
	eventLedger repository.EventLedger,
	payments *usecase.PaymentService,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		verifier:    verifier,
		eventLedger: eventLedger,
		payments:    payments,
		logger:      logger,
	}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/webhook/payments", h.HandlePaymentWebhook)
}

// HandlePaymentWebhook processes one provider notification. The signature is
// checked over the raw bytes before anything is parsed; an event id is
// settled exactly once no matter how often the provider redelivers it.
func (h *WebhookHandler) HandlePaymentWebhook(c echo.Context) error {
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "failed to read request body",
		})
	}

	ok, reason := h.verifier.Verify(
		rawBody,
		c.Request().Header.Get(HeaderTimestamp),
		c.Request().Header.Get(HeaderSignature),
	)
	if !ok {
		h.logger.Warn("Webhook signature rejected",
			zap.String("reason", string(reason)),
			zap.String("remote_ip", c.RealIP()))
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "invalid signature",
		})
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		h.logger.Warn("Malformed webhook payload", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "malformed payload",
		})
	}
	if envelope.ID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "missing event id",
		})
	}

	ctx := c.Request().Context()

	claimed, err := h.eventLedger.TryClaim(ctx, envelope.ID)
	if err != nil {
		h.logger.Error("Event ledger claim failed",
			zap.String("event_id", envelope.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "internal error",
		})
	}
	if !claimed {
		h.logger.Info("Duplicate webhook event ignored",
			zap.String("event_id", envelope.ID))
		return c.JSON(http.StatusOK, echo.Map{
			"status": "duplicate",
		})
	}

	kind := provider.ClassifyEventName(envelope.Type)
	if kind == provider.EventKindUnknown {
		h.logger.Info("Unknown webhook event type acknowledged",
			zap.String("event_id", envelope.ID),
			zap.String("type", envelope.Type))
		return c.JSON(http.StatusOK, echo.Map{
			"status": "ignored",
		})
	}

	ev := &provider.WebhookEvent{
		EventID:        envelope.ID,
		Kind:           kind,
		Reference:      envelope.Data.Reference,
		ProviderLinkID: envelope.Data.LinkID,
		TransactionID:  envelope.Data.TransactionID,
		Provider:       envelope.Data.Provider,
		AmountCents:    envelope.Data.Amount,
		Currency:       envelope.Data.Currency,
		FailureReason:  envelope.Data.FailureReason,
		CreatedAt:      time.Unix(envelope.Created, 0).UTC(),
	}

	switch kind {
	case provider.EventKindSucceeded:
		err = h.payments.ConfirmPayment(ctx, ev)
	case provider.EventKindFailed:
		err = h.payments.FailPayment(ctx, ev)
	case provider.EventKindRefunded:
		err = h.payments.HandleRefund(ctx, ev)
	case provider.EventKindLinkExpired:
		err = h.payments.ExpireLink(ctx, ev)
	}

	if err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			// The provider is sure, we are not. Acknowledge and keep the
			// trail in logs rather than bouncing the delivery forever.
			h.logger.Warn("Webhook event matched no payment session",
				zap.String("event_id", envelope.ID),
				zap.String("reference", envelope.Data.Reference))
			return c.JSON(http.StatusOK, echo.Map{
				"status": "unmatched",
			})
		}

		h.logger.Error("Webhook processing failed",
			zap.String("event_id", envelope.ID),
			zap.String("type", envelope.Type),
			zap.Error(err))

		// Give the claim back so the provider's retry is processed instead
		// of being absorbed as a duplicate. A paid event must never strand.
		if releaseErr := h.eventLedger.Release(ctx, envelope.ID); releaseErr != nil {
			h.logger.Error("Failed to release event claim",
				zap.String("event_id", envelope.ID),
				zap.Error(releaseErr))
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "processing failed",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status": "processed",
	})
}
