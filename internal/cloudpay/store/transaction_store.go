package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/protega/cloudpay/server/internal/pos"
)

// Canonical transaction statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

// CanTransition reports whether a transaction in status from may move to
// to.  Completed and cancelled are final; a failed payment may still be
// completed by a retried intent.
func CanTransition(from, to string) bool {
	switch from {
	case StatusCompleted, StatusCancelled:
		return false
	case StatusFailed:
		return to == StatusCompleted
	}
	return true
}

type TransactionItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type TransactionRecord struct {
	ID             string
	CustomerID     string
	MerchantID     string
	Provider       string
	ProviderRef    string
	ProviderStatus string
	Status         string
	FailureReason  string
	Amount         decimal.Decimal
	Tax            decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	Items          []TransactionItem
	Metadata       map[string]string
	Raw            map[string]any
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type TransactionFilter struct {
	CustomerID string
	MerchantID string
	Status     string
	Limit      int
}

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 50

// TransactionStore is the bookkeeping collaborator for checkout.
type TransactionStore interface {
	Create(ctx context.Context, rec TransactionRecord) error
	Get(ctx context.Context, id string) (TransactionRecord, error)
	List(ctx context.Context, f TransactionFilter) ([]TransactionRecord, error)

	// ApplyResult stores a provider result against the transaction along
	// with the canonical status derived from it.
	ApplyResult(ctx context.Context, id, provider string, res pos.PaymentResult, status string, at time.Time) error
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error

	// UpdateStatusByProviderRef is the reconciliation path.  It returns the
	// updated record, or ErrNotFound when no transaction carries ref.  A move
	// CanTransition refuses leaves the row untouched and returns it along
	// with ErrStatusFinal.
	UpdateStatusByProviderRef(ctx context.Context, provider, ref, status, providerStatus string, at time.Time) (TransactionRecord, error)

	// ListStale returns transactions in status last updated before cutoff,
	// oldest first.
	ListStale(ctx context.Context, status string, cutoff time.Time, limit int) ([]TransactionRecord, error)
}

// PaymentLedger mirrors settled transactions into an external ledger.
type PaymentLedger interface {
	RecordPayment(ctx context.Context, rec TransactionRecord) error
}
