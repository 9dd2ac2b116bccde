package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/enclave"
)

// Identity is the result of a successful authentication.
type Identity struct {
	RecordID          string
	CustomerID        string
	UserID            string
	VerificationCount int64
	Digest            enclave.Digest
}

type EnrollRequest struct {
	CustomerID string
	UserID     string
	Sample     string
}

type BiometricDeps struct {
	Cipher    *enclave.Cipher
	Records   store.BiometricStore
	Events    store.VerificationEventStore
	Directory *IdentityDirectory
	Logger    *log.Logger
}

// BiometricService enrolls templates and resolves samples to identities.
// Samples are never logged; only digest prefixes are.
type BiometricService struct {
	cipher    *enclave.Cipher
	records   store.BiometricStore
	events    store.VerificationEventStore
	directory *IdentityDirectory
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

func NewBiometricService(d BiometricDeps) *BiometricService {
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &BiometricService{
		cipher:    d.Cipher,
		records:   d.Records,
		events:    d.Events,
		directory: d.Directory,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Enroll encrypts and stores a new template.  A template that matches an
// active record, or an identity that already holds one, is a conflict;
// existing records are never overwritten.
func (s *BiometricService) Enroll(ctx context.Context, req EnrollRequest) (store.BiometricRecord, error) {
	sample := enclave.Normalize(req.Sample)
	if sample == "" {
		return store.BiometricRecord{}, ErrInvalidSample
	}
	customerID := strings.TrimSpace(req.CustomerID)
	userID := strings.TrimSpace(req.UserID)
	if customerID == "" && userID == "" {
		return store.BiometricRecord{}, ErrInvalidIdentity
	}

	digest := enclave.Hash(sample)

	exists, err := s.existsDigest(ctx, digest)
	if err != nil {
		return store.BiometricRecord{}, err
	}
	if exists {
		return store.BiometricRecord{}, fmt.Errorf("%w: template already enrolled", ErrConflict)
	}

	for _, ref := range []store.IdentityRef{
		{Kind: store.IdentityCustomer, ID: customerID},
		{Kind: store.IdentityUser, ID: userID},
	} {
		if ref.ID == "" {
			continue
		}
		has, err := s.records.HasActiveForIdentity(ctx, ref)
		if err != nil {
			return store.BiometricRecord{}, fmt.Errorf("Enroll: %w", err)
		}
		if has {
			return store.BiometricRecord{}, fmt.Errorf("%w: %s already has an active template", ErrConflict, ref.Kind)
		}
	}

	env, err := s.cipher.Encrypt([]byte(sample))
	if err != nil {
		return store.BiometricRecord{}, fmt.Errorf("Enroll encrypt: %w", err)
	}

	rec := store.BiometricRecord{
		ID:           s.newID(),
		CustomerID:   customerID,
		UserID:       userID,
		Salt:         env.Salt,
		Payload:      env.Payload,
		Digest:       digest,
		Active:       true,
		RegisteredAt: s.now(),
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return store.BiometricRecord{}, fmt.Errorf("%w: template already enrolled", ErrConflict)
		}
		return store.BiometricRecord{}, fmt.Errorf("Enroll: %w", err)
	}

	s.logger.Printf("biometric enrolled record_id=%s fp=%s", rec.ID, digest.Prefix())
	return rec, nil
}

// Exists reports whether sample matches any active record.
func (s *BiometricService) Exists(ctx context.Context, sample string) (bool, error) {
	sample = enclave.Normalize(sample)
	if sample == "" {
		return false, ErrInvalidSample
	}
	return s.existsDigest(ctx, enclave.Hash(sample))
}

// Authenticate resolves sample to the identity it was enrolled for and
// bumps the record's verification counter.
func (s *BiometricService) Authenticate(ctx context.Context, sample string) (Identity, error) {
	sample = enclave.Normalize(sample)
	if sample == "" {
		return Identity{}, ErrInvalidSample
	}
	digest := enclave.Hash(sample)
	now := s.now()

	rec, err := s.records.FindActiveByDigest(ctx, digest)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !enclave.Matches(sample, rec.Digest)) {
		s.recordEvent(ctx, store.VerificationEventRecord{
			DigestPrefix: digest.Prefix(),
			Reason:       store.ReasonNoMatch,
			AttemptedAt:  now,
		})
		return Identity{}, fmt.Errorf("%w: no matching template", ErrNotFound)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("Authenticate: %w", err)
	}

	active, err := s.directory.AllActive(ctx, rec)
	if err != nil {
		return Identity{}, fmt.Errorf("Authenticate directory: %w", err)
	}
	if !active {
		s.recordEvent(ctx, store.VerificationEventRecord{
			DigestPrefix: digest.Prefix(),
			RecordID:     rec.ID,
			CustomerID:   rec.CustomerID,
			UserID:       rec.UserID,
			Reason:       store.ReasonIdentityInactive,
			AttemptedAt:  now,
		})
		s.logger.Printf("biometric verify rejected record_id=%s reason=%s", rec.ID, store.ReasonIdentityInactive)
		return Identity{}, fmt.Errorf("%w: identity inactive", ErrNotFound)
	}

	count, err := s.records.RecordVerification(ctx, rec.ID, now)
	if err != nil {
		return Identity{}, fmt.Errorf("Authenticate: %w", err)
	}

	s.recordEvent(ctx, store.VerificationEventRecord{
		DigestPrefix: digest.Prefix(),
		RecordID:     rec.ID,
		CustomerID:   rec.CustomerID,
		UserID:       rec.UserID,
		Matched:      true,
		Reason:       store.ReasonMatched,
		AttemptedAt:  now,
	})

	return Identity{
		RecordID:          rec.ID,
		CustomerID:        rec.CustomerID,
		UserID:            rec.UserID,
		VerificationCount: count,
		Digest:            digest,
	}, nil
}

func (s *BiometricService) Deactivate(ctx context.Context, recordID string) error {
	err := s.records.SetActive(ctx, strings.TrimSpace(recordID), false)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: record %s", ErrNotFound, recordID)
	}
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	s.logger.Printf("biometric deactivated record_id=%s", recordID)
	return nil
}

// Erase hard-deletes every template held by ref.
func (s *BiometricService) Erase(ctx context.Context, ref store.IdentityRef) (int64, error) {
	ref.ID = strings.TrimSpace(ref.ID)
	if ref.ID == "" {
		return 0, ErrInvalidIdentity
	}
	n, err := s.records.DeleteByIdentity(ctx, ref)
	if err != nil {
		return 0, fmt.Errorf("Erase: %w", err)
	}
	s.logger.Printf("biometric erased identity=%s records=%d", ref, n)
	return n, nil
}

func (s *BiometricService) existsDigest(ctx context.Context, d enclave.Digest) (bool, error) {
	_, err := s.records.FindActiveByDigest(ctx, d)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup digest: %w", err)
	}
	return true, nil
}

// recordEvent persists the attempt to the audit log.  A failed audit write
// never changes the authentication decision.
func (s *BiometricService) recordEvent(ctx context.Context, rec store.VerificationEventRecord) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordEvent(ctx, rec); err != nil {
		s.logger.Printf("verification audit write failed fp=%s err=%v", rec.DigestPrefix, err)
	}
}
