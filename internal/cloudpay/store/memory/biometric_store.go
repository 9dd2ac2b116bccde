package memory

import (
	"context"
	"sync"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/enclave"
)

type BiometricStore struct {
	mu      sync.RWMutex
	records map[string]store.BiometricRecord
	events  *VerificationEventStore
}

type BiometricOption func(*BiometricStore)

// WithEventLog links the audit log DeleteByIdentity redacts.
func WithEventLog(ev *VerificationEventStore) BiometricOption {
	return func(s *BiometricStore) { s.events = ev }
}

func NewBiometricStore(opts ...BiometricOption) *BiometricStore {
	s := &BiometricStore{records: make(map[string]store.BiometricRecord)}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *BiometricStore) Insert(_ context.Context, rec store.BiometricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return store.ErrDuplicate
	}
	if rec.Active && s.conflictsLocked(rec) {
		return store.ErrDuplicate
	}
	if rec.RegisteredAt.IsZero() {
		rec.RegisteredAt = time.Now().UTC()
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *BiometricStore) FindActiveByDigest(_ context.Context, d enclave.Digest) (store.BiometricRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.Active && r.Digest == d {
			return r, nil
		}
	}
	return store.BiometricRecord{}, store.ErrNotFound
}

func (s *BiometricStore) HasActiveForIdentity(_ context.Context, ref store.IdentityRef) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.Active && belongsTo(r, ref) {
			return true, nil
		}
	}
	return false, nil
}

func (s *BiometricStore) RecordVerification(_ context.Context, id string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	at = at.UTC()
	r.VerificationCount++
	r.LastVerifiedAt = &at
	s.records[id] = r
	return r.VerificationCount, nil
}

func (s *BiometricStore) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	if active && !r.Active && s.conflictsLocked(r) {
		return store.ErrDuplicate
	}
	r.Active = active
	s.records[id] = r
	return nil
}

func (s *BiometricStore) DeleteByIdentity(_ context.Context, ref store.IdentityRef) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, r := range s.records {
		if belongsTo(r, ref) {
			delete(s.records, id)
			n++
		}
	}
	if s.events != nil {
		s.events.redact(ref)
	}
	return n, nil
}

// Get returns a record by id.  Test-only helper.
func (s *BiometricStore) Get(id string) (store.BiometricRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *BiometricStore) conflictsLocked(rec store.BiometricRecord) bool {
	for id, r := range s.records {
		if id == rec.ID || !r.Active {
			continue
		}
		if r.Digest == rec.Digest {
			return true
		}
		if rec.CustomerID != "" && r.CustomerID == rec.CustomerID {
			return true
		}
		if rec.UserID != "" && r.UserID == rec.UserID {
			return true
		}
	}
	return false
}

func belongsTo(r store.BiometricRecord, ref store.IdentityRef) bool {
	switch ref.Kind {
	case store.IdentityCustomer:
		return r.CustomerID == ref.ID
	case store.IdentityUser:
		return r.UserID == ref.ID
	}
	return false
}
