package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Reason explains why verification failed. It is safe to log; it never
// carries secret material or the presented signature.
type Reason string

const (
	ReasonOK               Reason = "ok"
	ReasonMissingTimestamp Reason = "missing_timestamp"
	ReasonMissingSignature Reason = "missing_signature"
	ReasonBadTimestamp     Reason = "bad_timestamp"
	ReasonStaleTimestamp   Reason = "stale_timestamp"
	ReasonBadSignature     Reason = "signature_mismatch"
)

// MaxTimestampSkew is the replay window: requests whose timestamp is further
// than this from the verifier's clock are rejected regardless of signature.
const MaxTimestampSkew = 300 * time.Second

// Verifier checks webhook request authenticity and freshness.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the given shared secret. The clock is
// injectable for tests; pass nil for time.Now.
func NewVerifier(secret []byte, now func() time.Time) *Verifier {
	if now == nil {
		now = time.Now
	}
	return &Verifier{secret: secret, now: now}
}

// Verify validates an inbound webhook request before any body parsing.
//
// The signature is HMAC-SHA256 over the exact bytes of timestamp || rawBody,
// hex encoded. Both headers must be present; any absence, parse failure, or
// stale timestamp fails closed without computing a digest.
func (v *Verifier) Verify(rawBody []byte, timestampHeader, signatureHeader string) (bool, Reason) {
	if timestampHeader == "" {
		return false, ReasonMissingTimestamp
	}
	if signatureHeader == "" {
		return false, ReasonMissingSignature
	}

	ts, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return false, ReasonBadTimestamp
	}

	skew := v.now().UTC().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxTimestampSkew {
		return false, ReasonStaleTimestamp
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestampHeader))
	mac.Write(rawBody)
	expected := mac.Sum(nil)

	presented, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false, ReasonBadSignature
	}

	if !hmac.Equal(expected, presented) {
		return false, ReasonBadSignature
	}

	return true, ReasonOK
}
