package memory

import (
	"context"
	"sync"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

// VerificationEventStore is an in-memory append-only log of authentication
// attempts.  It is intended for use in tests and dev environments.
type VerificationEventStore struct {
	mu     sync.Mutex
	events []store.VerificationEventRecord
}

func NewVerificationEventStore() *VerificationEventStore {
	return &VerificationEventStore{}
}

func (s *VerificationEventStore) RecordEvent(_ context.Context, rec store.VerificationEventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	return nil
}

// Events returns a copy of all recorded events.  Test-only helper.
func (s *VerificationEventStore) Events() []store.VerificationEventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.VerificationEventRecord, len(s.events))
	copy(out, s.events)
	return out
}

func (s *VerificationEventStore) redact(ref store.IdentityRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.events {
		if (ref.Kind == store.IdentityCustomer && e.CustomerID == ref.ID) ||
			(ref.Kind == store.IdentityUser && e.UserID == ref.ID) {
			s.events[i].DigestPrefix = ""
		}
	}
}
