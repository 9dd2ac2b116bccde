package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/cloudpay/types"
	"github.com/protega/cloudpay/server/internal/pos/stripe"
)

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req types.CheckoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON or a protobuf Struct")
		return
	}

	res, err := s.checkoutService.Checkout(r.Context(), checkoutRequestIn(req))
	if err != nil {
		status, code, msg := classify(err)
		if status >= http.StatusInternalServerError {
			s.logger.Printf("checkout error: %v", err)
		}
		respond(w, r, status, types.ErrorResponse{
			Error:         code,
			Message:       msg,
			TransactionID: res.Transaction.ID,
		})
		return
	}

	respond(w, r, http.StatusOK, types.CheckoutResponse{
		OK:           true,
		Transaction:  transactionOut(res.Transaction),
		ClientSecret: res.ClientSecret,
		ServerTime:   time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	var q types.TransactionQuery
	if err := s.query.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_query", "query parameters are malformed")
		return
	}
	if q.Limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_query", "limit must not be negative")
		return
	}

	f := store.TransactionFilter{
		CustomerID: q.CustomerID,
		MerchantID: q.MerchantID,
		Limit:      q.Limit,
	}
	if q.Status != "" {
		f.Status = service.CanonicalStatus(q.Status)
	}

	recs, err := s.checkoutService.ListTransactions(r.Context(), f)
	if err != nil {
		s.writeServiceError(w, "list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, types.TransactionList{OK: true, Transactions: transactionsOut(recs)})
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := s.checkoutService.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, "get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, transactionOut(rec))
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.ProviderList{OK: true, Providers: providersOut(s.checkoutService.Providers())})
}

func (s *Server) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "unreadable request body")
		return
	}

	evt, err := stripe.ConstructEvent(payload, r.Header.Get(stripe.SignatureHeader), s.webhookKey)
	switch {
	case errors.Is(err, stripe.ErrWebhookNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "webhook_not_configured", "stripe webhook secret is not configured")
		return
	case errors.Is(err, stripe.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "invalid_signature", "signature verification failed")
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_payload", "event payload is malformed")
		return
	}

	native, ok := evt.NativeStatus()
	if !ok || evt.Data.Object.ID == "" {
		writeJSON(w, http.StatusOK, types.WebhookResponse{OK: true, Event: evt.Type, Ignored: true})
		return
	}

	rec, err := s.checkoutService.Reconcile(r.Context(), stripe.Name, evt.Data.Object.ID, native)
	if errors.Is(err, service.ErrNotFound) {
		s.logger.Printf("stripe webhook event=%s ref=%s: no matching transaction", evt.Type, evt.Data.Object.ID)
		writeJSON(w, http.StatusOK, types.WebhookResponse{OK: true, Event: evt.Type, Ignored: true})
		return
	}
	if err != nil {
		s.writeServiceError(w, "stripe webhook", err)
		return
	}

	writeJSON(w, http.StatusOK, types.WebhookResponse{
		OK:            true,
		Event:         evt.Type,
		TransactionID: rec.ID,
		Status:        rec.Status,
	})
}
