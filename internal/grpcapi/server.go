// Package grpcapi exposes provider readiness over the standard gRPC health
// protocol so load balancers and terminals can check it without HTTP.
package grpcapi

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/graph"
)

// LedgerService is the health entry for the optional graph ledger.
const LedgerService = "cloudpay.ledger"

// DefaultRefreshInterval is how often Run re-evaluates health.
const DefaultRefreshInterval = 30 * time.Second

// ServiceName is the health entry reported for a payment provider.
func ServiceName(provider string) string { return "cloudpay.pos." + provider }

type Dependencies struct {
	Logger          *log.Logger
	Addr            string
	CheckoutService *service.CheckoutService
	Graph           graph.Client // optional
	RefreshInterval time.Duration
}

type Server struct {
	addr     string
	logger   *log.Logger
	grpc     *grpc.Server
	health   *health.Server
	checkout *service.CheckoutService
	graph    graph.Client
	interval time.Duration
}

func NewServer(d Dependencies) *Server {
	interval := d.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	s := &Server{
		addr:     d.Addr,
		logger:   d.Logger,
		grpc:     grpc.NewServer(),
		health:   health.NewServer(),
		checkout: d.CheckoutService,
		graph:    d.Graph,
		interval: interval,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Refresh recomputes every health entry.  The overall ("") entry is always
// SERVING; individual providers report NOT_SERVING until configured.
func (s *Server) Refresh(ctx context.Context) {
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	for _, p := range s.checkout.Providers() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if p.Configured {
			st = healthpb.HealthCheckResponse_SERVING
		}
		s.health.SetServingStatus(ServiceName(p.Name), st)
	}

	if s.graph == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.graph.Ping(pingCtx); err != nil {
		s.logger.Printf("grpc health: ledger ping failed: %v", err)
		s.health.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.health.SetServingStatus(LedgerService, healthpb.HealthCheckResponse_SERVING)
}

// Serve refreshes health once and serves on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.Refresh(context.Background())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Run keeps health entries current until ctx is done.
func (s *Server) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING, then drains in-flight RPCs.  If ctx
// expires first the server is stopped hard.
func (s *Server) Shutdown(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
