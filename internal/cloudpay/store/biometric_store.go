package store

import (
	"context"
	"time"

	"github.com/protega/cloudpay/server/internal/enclave"
)

// BiometricRecord is one enrolled template.  Salt and Payload are the
// base64 envelope fields; the plaintext sample is never stored.
type BiometricRecord struct {
	ID                string
	CustomerID        string
	UserID            string
	Salt              string
	Payload           string
	Digest            enclave.Digest
	Active            bool
	VerificationCount int64
	RegisteredAt      time.Time
	LastVerifiedAt    *time.Time
}

// Identity returns the identity the record belongs to, preferring the
// customer.
func (r BiometricRecord) Identity() IdentityRef {
	if r.CustomerID != "" {
		return IdentityRef{Kind: IdentityCustomer, ID: r.CustomerID}
	}
	return IdentityRef{Kind: IdentityUser, ID: r.UserID}
}

// BiometricStore holds encrypted templates.  A digest is unique among
// active records and an identity holds at most one active record; Insert
// and SetActive return ErrDuplicate when either would be violated.
type BiometricStore interface {
	Insert(ctx context.Context, rec BiometricRecord) error
	FindActiveByDigest(ctx context.Context, d enclave.Digest) (BiometricRecord, error)
	HasActiveForIdentity(ctx context.Context, ref IdentityRef) (bool, error)

	// RecordVerification increments the counter, stamps last-verified-at and
	// returns the new count.
	RecordVerification(ctx context.Context, id string, at time.Time) (int64, error)

	SetActive(ctx context.Context, id string, active bool) error

	// DeleteByIdentity removes every template ref holds and clears the
	// digest prefix from ref's verification events.
	DeleteByIdentity(ctx context.Context, ref IdentityRef) (int64, error)
}
