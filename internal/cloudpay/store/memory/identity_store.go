package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

// IdentityStore is an in-memory identity directory.  Identities not in the
// directory are treated as active unless Strict is set.
type IdentityStore struct {
	mu       sync.RWMutex
	inactive map[store.IdentityRef]struct{}
	known    map[store.IdentityRef]struct{}
	strict   bool
}

// NewIdentityStore returns a permissive directory: every identity is active
// until Deactivate is called for it.
func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		inactive: make(map[store.IdentityRef]struct{}),
		known:    make(map[store.IdentityRef]struct{}),
	}
}

// NewStrictIdentityStore only reports identities added with Activate.
func NewStrictIdentityStore() *IdentityStore {
	s := NewIdentityStore()
	s.strict = true
	return s
}

func (s *IdentityStore) IsActive(_ context.Context, ref store.IdentityRef) (bool, error) {
	ref.ID = strings.TrimSpace(ref.ID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, off := s.inactive[ref]; off {
		return false, nil
	}
	if s.strict {
		_, ok := s.known[ref]
		return ok, nil
	}
	return true, nil
}

func (s *IdentityStore) Activate(ref store.IdentityRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inactive, ref)
	s.known[ref] = struct{}{}
}

func (s *IdentityStore) Deactivate(ref store.IdentityRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inactive[ref] = struct{}{}
}
