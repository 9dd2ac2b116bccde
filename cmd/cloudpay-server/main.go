package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	graphstore "github.com/protega/cloudpay/server/internal/cloudpay/store/graph"
	"github.com/protega/cloudpay/server/internal/cloudpay/store/sqlite"
	"github.com/protega/cloudpay/server/internal/config"
	"github.com/protega/cloudpay/server/internal/db"
	"github.com/protega/cloudpay/server/internal/enclave"
	"github.com/protega/cloudpay/server/internal/graph"
	"github.com/protega/cloudpay/server/internal/grpcapi"
	"github.com/protega/cloudpay/server/internal/httpapi"
	"github.com/protega/cloudpay/server/internal/pos"
	"github.com/protega/cloudpay/server/internal/pos/square"
	"github.com/protega/cloudpay/server/internal/pos/stripe"
)

func main() {
	logger := log.New(os.Stdout, "cloudpay-server ", log.LstdFlags|log.LUTC)
	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	secret, err := enclave.NewMasterSecret(cfg.MasterKey)
	if err != nil {
		return fmt.Errorf("master key: %w", err)
	}
	taxRate, err := cfg.TaxRate()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		return err
	}
	if v, verr := db.SchemaVersion(ctx, conn); verr == nil {
		logger.Printf("db ready path=%s schema=%d", cfg.DBPath, v)
	}
	writer := db.NewWorker(conn)
	defer func() {
		writer.Close()
		err = multierr.Append(err, conn.Close())
	}()

	if cfg.Env == "dev" && len(cfg.DevCustomers) > 0 {
		if err := db.SeedDev(ctx, conn, db.SeedDevOptions{Customers: cfg.DevCustomers}); err != nil {
			return err
		}
	}

	// Optional graph ledger
	var (
		graphClient graph.Client
		ledger      store.PaymentLedger
	)
	if cfg.Graph.URI != "" {
		graphClient, err = graph.Dial(ctx, graph.Options{
			URI:      cfg.Graph.URI,
			Database: cfg.Graph.Database,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
		})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, graphClient.Close(closeCtx))
		}()
		ledger = graphstore.NewLedger(graphClient)
		logger.Printf("graph ledger enabled uri=%s", cfg.Graph.URI)
	}

	// Payment providers
	registry := pos.NewRegistry()
	err = multierr.Combine(
		registry.Register(stripe.New(stripe.Config{
			SecretKey:     cfg.Providers.Stripe.SecretKey,
			APIBase:       cfg.Providers.Stripe.APIBase,
			WebhookSecret: cfg.Providers.Stripe.WebhookSecret,
		})),
		registry.Register(square.New(square.Config{
			AccessToken: cfg.Providers.Square.AccessToken,
			LocationID:  cfg.Providers.Square.LocationID,
			APIBase:     cfg.Providers.Square.APIBase,
			Version:     cfg.Providers.Square.Version,
		})),
	)
	if err != nil {
		return err
	}
	for name, cerr := range registry.Configured() {
		if cerr != nil {
			logger.Printf("provider %s unavailable: %v", name, cerr)
		}
	}

	// Services
	biometricSvc := service.NewBiometricService(service.BiometricDeps{
		Cipher:    enclave.NewCipher(enclave.NewKeyDeriver(secret), logger),
		Records:   sqlite.NewBiometricStore(conn, writer),
		Events:    sqlite.NewVerificationEventStore(conn, writer),
		Directory: service.NewIdentityDirectory(sqlite.NewIdentityStore(conn, writer)),
		Logger:    logger,
	})
	checkoutSvc := service.NewCheckoutService(service.CheckoutDeps{
		Biometrics:      biometricSvc,
		Registry:        registry,
		Transactions:    sqlite.NewTransactionStore(conn, writer),
		Ledger:          ledger,
		TaxRate:         &taxRate,
		Currency:        cfg.Checkout.Currency,
		DefaultProvider: cfg.Checkout.DefaultProvider,
		Logger:          logger,
	})
	reconciler := service.NewReconcileWorker(checkoutSvc, service.ReconcileConfig{
		IntervalSeconds: cfg.Reconcile.IntervalSeconds,
		GraceMinutes:    cfg.Reconcile.GraceMinutes,
		BatchSize:       cfg.Reconcile.BatchSize,
		Concurrency:     cfg.Reconcile.Concurrency,
	}, logger)

	// Transports
	httpSrv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             cfg.HTTPAddr,
		CORSOrigins:      cfg.CORSOrigins,
		StripeWebhookKey: cfg.Providers.Stripe.WebhookSecret,
		BiometricService: biometricSvc,
		CheckoutService:  checkoutSvc,
	})
	grpcSrv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:          logger,
		Addr:            cfg.GRPCAddr,
		CheckoutService: checkoutSvc,
		Graph:           graphClient,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Printf("grpc listening on %s", cfg.GRPCAddr)
		if err := grpcSrv.Start(); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		grpcSrv.Run(gctx)
		return nil
	})

	reconciler.Start(gctx)

	g.Go(func() error {
		<-gctx.Done()
		logger.Printf("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reconciler.Stop()
		grpcSrv.Shutdown(shutdownCtx)
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
