package grpcapi_test

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store/memory"
	"github.com/protega/cloudpay/server/internal/graph"
	"github.com/protega/cloudpay/server/internal/grpcapi"
	"github.com/protega/cloudpay/server/internal/pos"
	"github.com/protega/cloudpay/server/internal/pos/square"
	"github.com/protega/cloudpay/server/internal/pos/stripe"
)

func newHealthClient(t *testing.T, g graph.Client) healthpb.HealthClient {
	t.Helper()

	registry := pos.NewRegistry()
	if err := registry.Register(stripe.New(stripe.Config{SecretKey: "sk_test_1"})); err != nil {
		t.Fatalf("Register stripe: %v", err)
	}
	if err := registry.Register(square.New(square.Config{})); err != nil {
		t.Fatalf("Register square: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	checkout := service.NewCheckoutService(service.CheckoutDeps{
		Registry:     registry,
		Transactions: memory.NewTransactionStore(),
		Logger:       logger,
	})

	srv := grpcapi.NewServer(grpcapi.Dependencies{
		Logger:          logger,
		CheckoutService: checkout,
		Graph:           g,
	})

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

// check polls until Serve has run its first Refresh.
func check(t *testing.T, c healthpb.HealthClient, name string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: name})
		cancel()
		if err == nil {
			return resp.GetStatus()
		}
		if time.Now().After(deadline) {
			t.Fatalf("Check(%q): %v", name, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealth_PerProvider(t *testing.T) {
	c := newHealthClient(t, nil)

	if got := check(t, c, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall = %v, want SERVING", got)
	}
	if got := check(t, c, grpcapi.ServiceName("stripe")); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("stripe = %v, want SERVING", got)
	}
	if got := check(t, c, grpcapi.ServiceName("square")); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("square = %v, want NOT_SERVING", got)
	}
}

func TestHealth_Ledger(t *testing.T) {
	rec := graph.NewRecorder()
	c := newHealthClient(t, rec)
	if got := check(t, c, grpcapi.LedgerService); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("ledger = %v, want SERVING", got)
	}

	down := graph.NewRecorder()
	down.FailWith(errors.New("bolt unavailable"))
	c = newHealthClient(t, down)
	if got := check(t, c, grpcapi.LedgerService); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("ledger = %v, want NOT_SERVING", got)
	}
}
