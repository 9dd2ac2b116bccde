package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/types"
	"github.com/protega/cloudpay/server/internal/pos"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{Error: code, Message: msg})
}

// decodeJSON reads a size-capped JSON body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// classify maps a service error onto an HTTP status and a stable code.
// Messages for 5xx are fixed; the error itself goes to the log.
func classify(err error) (status int, code, msg string) {
	var ae *pos.AdapterError
	switch {
	case errors.Is(err, service.ErrInvalidSample):
		return http.StatusBadRequest, "invalid_sample", err.Error()
	case errors.Is(err, service.ErrInvalidIdentity):
		return http.StatusBadRequest, "invalid_identity", err.Error()
	case errors.Is(err, service.ErrInvalidMerchant):
		return http.StatusBadRequest, "invalid_merchant", err.Error()
	case errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount", err.Error()
	case errors.Is(err, pos.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, pos.ErrProviderNotFound):
		var nf *pos.ProviderNotFoundError
		if errors.As(err, &nf) {
			return http.StatusBadRequest, "unknown_provider", nf.Error()
		}
		return http.StatusBadRequest, "unknown_provider", "payment provider is not registered"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not_found", "no matching record"
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, "conflict", "biometric template already enrolled"
	case errors.Is(err, pos.ErrNotConfigured):
		return http.StatusServiceUnavailable, "provider_not_configured", "payment provider is not configured"
	case errors.As(err, &ae):
		if ae.Message == "" {
			return http.StatusBadGateway, "payment_failed", "payment provider request failed"
		}
		return http.StatusBadGateway, "payment_failed", ae.Message
	}
	return http.StatusInternalServerError, "internal_error", "unexpected server error"
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s error: %v", op, err)
	}
	writeError(w, status, code, msg)
}
