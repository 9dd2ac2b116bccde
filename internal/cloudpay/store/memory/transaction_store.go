package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/pos"
)

type TransactionStore struct {
	mu   sync.RWMutex
	txns map[string]store.TransactionRecord
}

func NewTransactionStore() *TransactionStore {
	return &TransactionStore{txns: make(map[string]store.TransactionRecord)}
}

func (s *TransactionStore) Create(_ context.Context, rec store.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txns[rec.ID]; exists {
		return store.ErrDuplicate
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	s.txns[rec.ID] = cloneTxn(rec)
	return nil
}

func (s *TransactionStore) Get(_ context.Context, id string) (store.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.txns[id]
	if !ok {
		return store.TransactionRecord{}, store.ErrNotFound
	}
	return cloneTxn(r), nil
}

func (s *TransactionStore) List(_ context.Context, f store.TransactionFilter) ([]store.TransactionRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	s.mu.RLock()
	var out []store.TransactionRecord
	for _, r := range s.txns {
		if f.CustomerID != "" && r.CustomerID != f.CustomerID {
			continue
		}
		if f.MerchantID != "" && r.MerchantID != f.MerchantID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, cloneTxn(r))
	}
	s.mu.RUnlock()

	// Newest first.
	slices.SortFunc(out, func(a, b store.TransactionRecord) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *TransactionStore) ApplyResult(_ context.Context, id, provider string, res pos.PaymentResult, status string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.txns[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Provider = provider
	r.ProviderRef = res.TransactionRef
	r.ProviderStatus = res.Status
	r.Status = status
	r.Raw = maps.Clone(res.Raw)
	r.UpdatedAt = at.UTC()
	s.txns[id] = r
	return nil
}

func (s *TransactionStore) MarkFailed(_ context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.txns[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Status = store.StatusFailed
	r.FailureReason = reason
	r.UpdatedAt = at.UTC()
	s.txns[id] = r
	return nil
}

func (s *TransactionStore) UpdateStatusByProviderRef(_ context.Context, provider, ref, status, providerStatus string, at time.Time) (store.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.txns {
		if r.Provider != provider || r.ProviderRef != ref || ref == "" {
			continue
		}
		if !store.CanTransition(r.Status, status) {
			return cloneTxn(r), store.ErrStatusFinal
		}
		r.Status = status
		r.ProviderStatus = providerStatus
		r.UpdatedAt = at.UTC()
		s.txns[id] = r
		return cloneTxn(r), nil
	}
	return store.TransactionRecord{}, store.ErrNotFound
}

func (s *TransactionStore) ListStale(_ context.Context, status string, cutoff time.Time, limit int) ([]store.TransactionRecord, error) {
	s.mu.RLock()
	var out []store.TransactionRecord
	for _, r := range s.txns {
		if r.Status == status && r.UpdatedAt.Before(cutoff) {
			out = append(out, cloneTxn(r))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b store.TransactionRecord) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTxn(r store.TransactionRecord) store.TransactionRecord {
	r.Items = slices.Clone(r.Items)
	r.Metadata = maps.Clone(r.Metadata)
	r.Raw = maps.Clone(r.Raw)
	return r
}
