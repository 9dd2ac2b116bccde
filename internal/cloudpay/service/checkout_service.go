package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/enclave"
	"github.com/protega/cloudpay/server/internal/pos"
)

// DefaultTaxRate applies when CheckoutDeps.TaxRate is nil.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Bookkeeping writes that follow a provider call are retried this often
// before the row is left for reconciliation.
const bookkeepingAttempts = 3

type CheckoutRequest struct {
	Sample             string
	MerchantID         string
	Provider           string
	Amount             decimal.Decimal
	Currency           string
	Items              []pos.LineItem
	PaymentMethodToken string
	Email              string
	Name               string
}

type CheckoutResult struct {
	Transaction  store.TransactionRecord
	Identity     Identity
	ClientSecret string
}

type CheckoutDeps struct {
	Biometrics      *BiometricService
	Registry        *pos.Registry
	Transactions    store.TransactionStore
	Ledger          store.PaymentLedger // optional
	TaxRate         *decimal.Decimal    // nil means DefaultTaxRate; zero is a valid rate
	Currency        string
	DefaultProvider string
	Logger          *log.Logger
}

// CheckoutService authenticates the payer, books the transaction and
// dispatches it to a provider.
type CheckoutService struct {
	biometrics      *BiometricService
	registry        *pos.Registry
	txns            store.TransactionStore
	ledger          store.PaymentLedger
	taxRate         decimal.Decimal
	currency        string
	defaultProvider string
	logger          *log.Logger
	now             func() time.Time
	retryDelay      time.Duration
}

func NewCheckoutService(d CheckoutDeps) *CheckoutService {
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	rate := DefaultTaxRate
	if d.TaxRate != nil {
		rate = *d.TaxRate
	}
	currency := strings.ToLower(strings.TrimSpace(d.Currency))
	if currency == "" {
		currency = pos.DefaultCurrency
	}
	return &CheckoutService{
		biometrics:      d.Biometrics,
		registry:        d.Registry,
		txns:            d.Transactions,
		ledger:          d.Ledger,
		taxRate:         rate,
		currency:        currency,
		defaultProvider: strings.ToLower(strings.TrimSpace(d.DefaultProvider)),
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
		retryDelay:      50 * time.Millisecond,
	}
}

// Checkout runs one biometric payment.  When dispatch fails the transaction
// is already marked failed and is returned alongside the error.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	merchantID := strings.TrimSpace(req.MerchantID)
	if merchantID == "" {
		return CheckoutResult{}, ErrInvalidMerchant
	}
	amount := req.Amount
	if amount.IsZero() && len(req.Items) > 0 {
		amount = itemsTotal(req.Items)
	}
	if !amount.IsPositive() {
		return CheckoutResult{}, ErrInvalidAmount
	}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		provider = s.defaultProvider
	}
	// Fail on an unknown provider before any side effect.
	if _, err := s.registry.Get(provider); err != nil {
		return CheckoutResult{}, err
	}

	ident, err := s.biometrics.Authenticate(ctx, req.Sample)
	if err != nil {
		return CheckoutResult{}, err
	}
	if ident.CustomerID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: template is not bound to a customer", ErrNotFound)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.currency
	}
	tax := amount.Mul(s.taxRate).Round(2)
	total := amount.Add(tax)
	now := s.now()

	txnID, err := newTransactionID()
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("Checkout: %w", err)
	}
	txn := store.TransactionRecord{
		ID:         txnID,
		CustomerID: ident.CustomerID,
		MerchantID: merchantID,
		Provider:   provider,
		Status:     store.StatusProcessing,
		Amount:     amount,
		Tax:        tax,
		Total:      total,
		Currency:   currency,
		Items:      toTransactionItems(req.Items),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	txn.Metadata = map[string]string{
		"transaction_id":   txn.ID,
		"customer_id":      ident.CustomerID,
		"merchant_id":      merchantID,
		"fingerprint_hash": ident.Digest.Prefix(),
	}

	payReq, err := pos.NewPaymentRequest(pos.RequestParams{
		Amount:             amount,
		Total:              total,
		Currency:           currency,
		PayerRef:           ident.CustomerID,
		PayerEmail:         req.Email,
		PayerName:          req.Name,
		MerchantRef:        merchantID,
		PaymentMethodToken: req.PaymentMethodToken,
		BiometricHash:      ident.Digest.String(),
		Metadata:           txn.Metadata,
		Items:              req.Items,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	if err := s.txns.Create(ctx, txn); err != nil {
		return CheckoutResult{}, fmt.Errorf("Checkout create transaction: %w", err)
	}

	res, err := s.registry.Process(ctx, provider, payReq)
	if err != nil {
		// The provider may have been reached; the row must not stay open.
		reason := failureReason(err)
		at := s.now()
		if merr := s.persist(ctx, func(ctx context.Context) error {
			return s.txns.MarkFailed(ctx, txn.ID, reason, at)
		}); merr != nil {
			s.logger.Printf("checkout mark failed txn=%s err=%v", txn.ID, merr)
		}
		s.logDispatchError(txn.ID, provider, err)
		txn.Status = store.StatusFailed
		txn.FailureReason = reason
		txn.UpdatedAt = at
		return CheckoutResult{Transaction: txn, Identity: ident}, fmt.Errorf("Checkout %s: %w", txn.ID, err)
	}

	status := CanonicalStatus(res.Status)
	at := s.now()
	txn.ProviderStatus = res.Status
	txn.ProviderRef = res.TransactionRef
	txn.Raw = res.Raw
	if err := s.persist(ctx, func(ctx context.Context) error {
		return s.txns.ApplyResult(ctx, txn.ID, provider, res, status, at)
	}); err != nil {
		// The charge went through but the row still reads processing without
		// a reference.  Hand the caller everything needed to match it up.
		s.logger.Printf("checkout apply result failed txn=%s provider=%s ref=%s status=%s err=%v",
			txn.ID, provider, res.TransactionRef, status, err)
		return CheckoutResult{Transaction: txn, Identity: ident, ClientSecret: res.ClientSecret},
			fmt.Errorf("Checkout apply result %s: %w", txn.ID, err)
	}
	txn.Status = status
	txn.UpdatedAt = at

	s.logger.Printf("checkout txn=%s provider=%s status=%s ref=%s fp=%s",
		txn.ID, provider, status, res.TransactionRef, ident.Digest.Prefix())

	if status == store.StatusCompleted {
		s.mirror(ctx, txn)
	}

	return CheckoutResult{Transaction: txn, Identity: ident, ClientSecret: res.ClientSecret}, nil
}

// Reconcile applies a late provider status, from a webhook or a poll.  A
// status that would reopen a settled transaction is ignored and the stored
// record is returned unchanged.
func (s *CheckoutService) Reconcile(ctx context.Context, provider, ref, native string) (store.TransactionRecord, error) {
	status := CanonicalStatus(native)
	rec, err := s.txns.UpdateStatusByProviderRef(ctx, strings.ToLower(provider), ref, status, native, s.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.TransactionRecord{}, fmt.Errorf("%w: no transaction for %s ref %s", ErrNotFound, provider, ref)
	case errors.Is(err, store.ErrStatusFinal):
		s.logger.Printf("reconcile kept txn=%s provider=%s status=%s reported=%s", rec.ID, provider, rec.Status, status)
		return rec, nil
	case err != nil:
		return store.TransactionRecord{}, fmt.Errorf("Reconcile: %w", err)
	}

	s.logger.Printf("reconciled txn=%s provider=%s status=%s", rec.ID, provider, status)
	if status == store.StatusCompleted {
		s.mirror(ctx, rec)
	}
	return rec, nil
}

func (s *CheckoutService) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]store.TransactionRecord, error) {
	return s.txns.List(ctx, f)
}

func (s *CheckoutService) GetTransaction(ctx context.Context, id string) (store.TransactionRecord, error) {
	rec, err := s.txns.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, store.ErrNotFound) {
		return store.TransactionRecord{}, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}
	return rec, err
}

type ProviderStatus struct {
	Name       string
	Configured bool
	Missing    []string
}

// Providers lists every registered adapter and whether it can take
// payments.
func (s *CheckoutService) Providers() []ProviderStatus {
	cfg := s.registry.Configured()
	out := make([]ProviderStatus, 0, len(cfg))
	for _, name := range s.registry.AvailableProviders() {
		ps := ProviderStatus{Name: name, Configured: cfg[name] == nil}
		var ce *pos.ConfigError
		if errors.As(cfg[name], &ce) {
			ps.Missing = ce.Missing
		}
		out = append(out, ps)
	}
	return out
}

// persist runs a bookkeeping write detached from the caller, retrying
// briefly.  Once the provider has been called the outcome must be recorded
// even if the client has gone away.
func (s *CheckoutService) persist(ctx context.Context, write func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pos.SendTimeout)
	defer cancel()

	backoff := retry.WithMaxRetries(bookkeepingAttempts-1, retry.NewConstant(s.retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (s *CheckoutService) mirror(ctx context.Context, rec store.TransactionRecord) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.RecordPayment(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Printf("ledger mirror failed txn=%s err=%v", rec.ID, err)
	}
}

func (s *CheckoutService) logDispatchError(txnID, provider string, err error) {
	var ae *pos.AdapterError
	if errors.As(err, &ae) && ae.Cause() != nil {
		s.logger.Printf("checkout dispatch failed txn=%s provider=%s err=%v cause=%v", txnID, provider, err, ae.Cause())
		return
	}
	s.logger.Printf("checkout dispatch failed txn=%s provider=%s err=%v", txnID, provider, err)
}

func failureReason(err error) string {
	var ae *pos.AdapterError
	if errors.As(err, &ae) {
		if ae.Message != "" {
			return ae.Message
		}
		return ae.Stage + " failed"
	}
	if errors.Is(err, pos.ErrNotConfigured) {
		return "provider not configured"
	}
	return "dispatch failed"
}

// newTransactionID returns TXN- followed by 8 uppercase hex characters.
func newTransactionID() (string, error) {
	tok, err := enclave.GenerateToken(4)
	if err != nil {
		return "", err
	}
	return "TXN-" + strings.ToUpper(tok), nil
}

func itemsTotal(items []pos.LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(q))))
	}
	return sum
}

func toTransactionItems(items []pos.LineItem) []store.TransactionItem {
	out := make([]store.TransactionItem, 0, len(items))
	for _, it := range items {
		q := it.Quantity
		if q <= 0 {
			q = 1
		}
		out = append(out, store.TransactionItem{Name: it.Name, Price: it.Price, Quantity: q})
	}
	return out
}
