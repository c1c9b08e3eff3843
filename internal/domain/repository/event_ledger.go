package repository

import "context"

// EventLedger is the idempotency guard for inbound webhook events.
type EventLedger interface {
	// TryClaim atomically records the event id if it has not been seen.
	// It returns true only for the first caller; concurrent claims for the
	// same id must resolve to exactly one winner at the storage layer.
	TryClaim(ctx context.Context, eventID string) (bool, error)

	// Release drops the marker for an event whose processing failed, so the
	// provider's next redelivery gets a fresh claim instead of a duplicate
	// acknowledgement.
	Release(ctx context.Context, eventID string) error

	// PurgeExpired removes markers past their retention window and returns
	// how many were dropped. Backends with native TTL may treat this as a
	// no-op.
	PurgeExpired(ctx context.Context) (int64, error)
}
