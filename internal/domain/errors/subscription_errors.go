package errors

import "errors"

// Subscription ledger errors
var (
	// ErrMemberNotFound indicates no subscription record exists for the user.
	ErrMemberNotFound = errors.New("member not found")

	// ErrMemberWhitelisted indicates a mutation that would set a payment date
	// on a whitelisted member. Whitelisted rows have no payment schedule;
	// the ledger rejects the mutation instead of coercing state.
	ErrMemberWhitelisted = errors.New("member is whitelisted")

	// ErrSessionNotFound indicates a webhook event referenced a payment
	// session this service does not know. It is acknowledged, not retried.
	ErrSessionNotFound = errors.New("payment session not found")

	// ErrSessionTerminal indicates an attempt to move a payment session out
	// of a terminal state.
	ErrSessionTerminal = errors.New("payment session already terminal")
)
