package httpapi

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/schema"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
)

type Dependencies struct {
	Logger           *log.Logger
	Addr             string
	CORSOrigins      []string
	StripeWebhookKey string
	BiometricService *service.BiometricService
	CheckoutService  *service.CheckoutService
}

type Server struct {
	httpServer       *http.Server
	logger           *log.Logger
	mux              *http.ServeMux
	query            *schema.Decoder
	webhookKey       string
	biometricService *service.BiometricService
	checkoutService  *service.CheckoutService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	query := schema.NewDecoder()
	query.IgnoreUnknownKeys(true)

	s := &Server{
		logger:           d.Logger,
		mux:              mux,
		query:            query,
		webhookKey:       d.StripeWebhookKey,
		biometricService: d.BiometricService,
		checkoutService:  d.CheckoutService,
	}

	mux.HandleFunc("POST /v1/biometrics/enroll", s.handleEnroll)
	mux.HandleFunc("POST /v1/biometrics/verify", s.handleVerify)
	mux.HandleFunc("DELETE /v1/biometrics/{kind}/{id}", s.handleErase)
	mux.HandleFunc("POST /v1/checkout", s.handleCheckout)
	mux.HandleFunc("GET /v1/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("GET /v1/providers", s.handleProviders)
	mux.HandleFunc("POST /v1/webhooks/stripe", s.handleStripeWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	handler := loggingMiddleware(d.Logger, corsMiddleware(d.CORSOrigins, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":          true,
		"server_time": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
