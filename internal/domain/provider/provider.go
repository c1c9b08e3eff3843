package provider

import (
	"context"
	"time"
)

// PaymentProvider defines the interface for payment rails (card links, native invoices).
type PaymentProvider interface {
	// CreateSession creates a provider-side payment session (a hosted link or
	// an invoice) the user completes out of band.
	CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error)

	// CancelSession deactivates a provider-side session, if the rail supports it.
	CancelSession(ctx context.Context, providerSessionID string) error

	// GetProviderName returns the provider name
	GetProviderName() string
}

// CreateSessionRequest represents a provider-agnostic session creation request
type CreateSessionRequest struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	AmountCents int64  `json:"amount_cents"` // smallest currency unit
	Currency    string `json:"currency"`
	Reference   string `json:"reference"` // deterministic webhook-matching key
	PlanID      string `json:"plan_id"`
	PlanName    string `json:"plan_name"`
	ExpiresIn   time.Duration `json:"-"`
}

// CreateSessionResponse represents the response from session creation
type CreateSessionResponse struct {
	ProviderSessionID string     `json:"provider_session_id"`
	PaymentURL        string     `json:"payment_url,omitempty"`    // hosted card link
	InvoicePayload    string     `json:"invoice_payload,omitempty"` // native invoice handle
	Status            string     `json:"status"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// EventKind is the closed set of webhook event kinds the core cares about.
// Unknown kinds are acknowledged and ignored, never dispatched.
type EventKind string

const (
	EventKindSucceeded   EventKind = "succeeded"
	EventKindFailed      EventKind = "failed"
	EventKindRefunded    EventKind = "refunded"
	EventKindLinkExpired EventKind = "link_expired"
	EventKindUnknown     EventKind = "unknown"
)

// ClassifyEventName maps a provider wire-level event name to an EventKind.
func ClassifyEventName(name string) EventKind {
	switch name {
	case "payment_intent.succeeded":
		return EventKindSucceeded
	case "payment_intent.failed":
		return EventKindFailed
	case "refund.succeeded":
		return EventKindRefunded
	case "payment_link.expired":
		return EventKindLinkExpired
	default:
		return EventKindUnknown
	}
}

// WebhookEvent is the parsed, provider-agnostic form of a webhook notification.
type WebhookEvent struct {
	EventID       string    `json:"event_id"`
	Kind          EventKind `json:"kind"`
	Reference     string    `json:"reference,omitempty"`
	ProviderLinkID string   `json:"provider_link_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	AmountCents   int64     `json:"amount_cents,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ProviderError carries provider failure details and retry classification.
type ProviderError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}
