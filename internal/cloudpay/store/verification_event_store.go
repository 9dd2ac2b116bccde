package store

import (
	"context"
	"time"
)

// Verification outcomes recorded in the audit log.
const (
	ReasonMatched          = "matched"
	ReasonNoMatch          = "no_match"
	ReasonIdentityInactive = "identity_inactive"
)

// VerificationEventRecord captures one authentication attempt.  Only the
// digest prefix is kept.
type VerificationEventRecord struct {
	DigestPrefix string
	RecordID     string // empty when nothing matched
	CustomerID   string
	UserID       string
	Matched      bool
	Reason       string
	AttemptedAt  time.Time
}

// VerificationEventStore is an append-only audit log.
type VerificationEventStore interface {
	RecordEvent(ctx context.Context, rec VerificationEventRecord) error
}
