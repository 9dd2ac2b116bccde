package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
)

func seedTxn(t *testing.T, f *fixture, id, provider, ref string, age time.Duration) {
	t.Helper()
	ts := time.Now().UTC().Add(-age)
	if err := f.txns.Create(context.Background(), store.TransactionRecord{
		ID:          id,
		CustomerID:  "cust-1",
		MerchantID:  "m",
		Provider:    provider,
		ProviderRef: ref,
		Status:      store.StatusProcessing,
		Total:       decimal.NewFromInt(5),
		Currency:    "usd",
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestReconcileWorker_DisabledWhenIntervalZero(t *testing.T) {
	f := newFixture(t)
	cs, _ := newCheckout(t, f)
	w := service.NewReconcileWorker(cs, service.ReconcileConfig{IntervalSeconds: 0}, silentLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	// Stop should return immediately.
	w.Stop()
}

func TestReconcileWorker_SettlesStaleTransactions(t *testing.T) {
	f := newFixture(t)
	cs, _ := newCheckout(t, f,
		&stubAdapter{name: "stripe", fetched: "succeeded"},
		&stubAdapter{name: "square"}, // FetchStatus errors
	)

	seedTxn(t, f, "TXN-00000001", "stripe", "pi_1", time.Hour)
	seedTxn(t, f, "TXN-00000002", "stripe", "pi_2", time.Minute) // inside grace
	seedTxn(t, f, "TXN-00000003", "square", "sq_1", time.Hour)
	seedTxn(t, f, "TXN-00000004", "stripe", "", time.Hour) // no reference, no recorded failure

	// Dispatch failed but closing the row did not stick.
	old := time.Now().UTC().Add(-time.Hour)
	if err := f.txns.Create(context.Background(), store.TransactionRecord{
		ID: "TXN-00000005", CustomerID: "cust-1", MerchantID: "m", Provider: "stripe",
		Status: store.StatusProcessing, FailureReason: "provider unreachable",
		Total: decimal.NewFromInt(5), Currency: "usd", CreatedAt: old, UpdatedAt: old,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := service.NewReconcileWorker(cs, service.ReconcileConfig{IntervalSeconds: 60, GraceMinutes: 15}, silentLogger())
	if n := w.RunOnce(context.Background()); n != 2 {
		t.Errorf("settled %d, want 2", n)
	}

	want := map[string]string{
		"TXN-00000001": store.StatusCompleted,
		"TXN-00000002": store.StatusProcessing,
		"TXN-00000003": store.StatusProcessing,
		"TXN-00000004": store.StatusProcessing,
		"TXN-00000005": store.StatusFailed,
	}
	for id, status := range want {
		got, err := f.txns.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if got.Status != status {
			t.Errorf("%s: got %q, want %q", id, got.Status, status)
		}
	}
}

func TestReconcileWorker_LeavesStillProcessing(t *testing.T) {
	f := newFixture(t)
	cs, _ := newCheckout(t, f, &stubAdapter{name: "stripe", fetched: "requires_action"})
	seedTxn(t, f, "TXN-00000001", "stripe", "pi_1", time.Hour)

	w := service.NewReconcileWorker(cs, service.ReconcileConfig{IntervalSeconds: 60}, silentLogger())
	if n := w.RunOnce(context.Background()); n != 0 {
		t.Errorf("settled %d, want 0", n)
	}
}

func TestReconcileWorker_StartStop(t *testing.T) {
	f := newFixture(t)
	cs, _ := newCheckout(t, f, &stubAdapter{name: "stripe", fetched: "failed"})
	seedTxn(t, f, "TXN-00000001", "stripe", "pi_1", time.Hour)

	w := service.NewReconcileWorker(cs, service.ReconcileConfig{IntervalSeconds: 3600}, silentLogger())
	w.Start(context.Background())
	w.Stop()

	got, _ := f.txns.Get(context.Background(), "TXN-00000001")
	if got.Status != store.StatusFailed {
		t.Errorf("startup pass did not run: status %q", got.Status)
	}
}
