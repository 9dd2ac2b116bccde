package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/pos"
)

// ReconcileWorker periodically polls providers for transactions still
// processing after a grace period.  It runs as a background goroutine and
// is safe to stop via its context or the Stop method.
//
// An interval of 0 disables polling entirely.
type ReconcileWorker struct {
	checkout    *CheckoutService
	registry    *pos.Registry
	txns        store.TransactionStore
	grace       time.Duration
	interval    time.Duration
	batch       int
	concurrency int
	logger      *log.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// ReconcileConfig holds the parameters for NewReconcileWorker.
type ReconcileConfig struct {
	// IntervalSeconds is how often the worker polls.  0 disables it.
	IntervalSeconds int

	// GraceMinutes is how long a transaction may stay processing before it
	// is polled.  Defaults to 15.
	GraceMinutes int

	// BatchSize caps transactions per pass.  Defaults to 50.
	BatchSize int

	// Concurrency caps parallel provider lookups.  Defaults to 4.
	Concurrency int
}

// NewReconcileWorker creates a worker but does not start it.
func NewReconcileWorker(cs *CheckoutService, cfg ReconcileConfig, logger *log.Logger) *ReconcileWorker {
	grace := time.Duration(cfg.GraceMinutes) * time.Minute
	if grace <= 0 {
		grace = 15 * time.Minute
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = store.DefaultListLimit
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 4
	}

	return &ReconcileWorker{
		checkout:    cs,
		registry:    cs.registry,
		txns:        cs.txns,
		grace:       grace,
		interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		batch:       batch,
		concurrency: conc,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// Start runs one pass immediately, then repeats on the interval until ctx
// is cancelled or Stop is called.
func (w *ReconcileWorker) Start(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Printf("reconcile worker disabled (interval=0)")
		close(w.done)
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)

	go w.loop(ctx)

	w.logger.Printf("reconcile worker started (interval=%s, grace=%s)", w.interval, w.grace)
}

// Stop signals the worker to exit and waits for it to finish.
func (w *ReconcileWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

func (w *ReconcileWorker) loop(ctx context.Context) {
	defer close(w.done)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single reconciliation pass and returns how many
// transactions reached a terminal status.
func (w *ReconcileWorker) RunOnce(ctx context.Context) int {
	now := w.checkout.now()
	stale, err := w.txns.ListStale(ctx, store.StatusProcessing, now.Add(-w.grace), w.batch)
	if err != nil {
		w.logger.Printf("reconcile list error: %v", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	settled := make([]bool, len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, txn := range stale {
		g.Go(func() error {
			settled[i] = w.reconcile(gctx, txn)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range settled {
		if ok {
			n++
		}
	}
	if n > 0 {
		w.logger.Printf("reconcile pass: settled %d of %d stale transactions", n, len(stale))
	}
	return n
}

func (w *ReconcileWorker) reconcile(ctx context.Context, txn store.TransactionRecord) bool {
	// Without a reference there is nothing to poll.  Age alone says nothing
	// about the charge, so the row is only closed when a dispatch failure
	// was recorded against it.
	if txn.ProviderRef == "" {
		if txn.FailureReason == "" {
			w.logger.Printf("reconcile skip txn=%s provider=%s: no provider reference", txn.ID, txn.Provider)
			return false
		}
		if err := w.txns.MarkFailed(ctx, txn.ID, txn.FailureReason, w.checkout.now()); err != nil {
			w.logger.Printf("reconcile mark failed txn=%s err=%v", txn.ID, err)
			return false
		}
		return true
	}

	a, err := w.registry.Get(txn.Provider)
	if err != nil {
		w.logger.Printf("reconcile txn=%s err=%v", txn.ID, err)
		return false
	}
	fetcher, ok := a.(pos.StatusFetcher)
	if !ok {
		return false
	}

	res, err := fetcher.FetchStatus(ctx, txn.ProviderRef)
	if err != nil {
		var ae *pos.AdapterError
		if errors.As(err, &ae) {
			w.logger.Printf("reconcile fetch txn=%s err=%v cause=%v", txn.ID, err, ae.Cause())
		} else {
			w.logger.Printf("reconcile fetch txn=%s err=%v", txn.ID, err)
		}
		return false
	}
	if !IsTerminal(CanonicalStatus(res.Status)) {
		return false
	}

	if _, err := w.checkout.Reconcile(ctx, txn.Provider, txn.ProviderRef, res.Status); err != nil {
		w.logger.Printf("reconcile update txn=%s err=%v", txn.ID, err)
		return false
	}
	return true
}
