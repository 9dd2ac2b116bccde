package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/protega/cloudpay/server/internal/cloudpay/service"
	"github.com/protega/cloudpay/server/internal/cloudpay/store"
	"github.com/protega/cloudpay/server/internal/cloudpay/types"
)

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req types.EnrollRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	rec, err := s.biometricService.Enroll(r.Context(), service.EnrollRequest{
		CustomerID: req.CustomerID,
		UserID:     req.UserID,
		Sample:     req.Sample,
	})
	if err != nil {
		s.writeServiceError(w, "enroll", err)
		return
	}

	writeJSON(w, http.StatusCreated, types.EnrollResponse{
		OK:                true,
		RecordID:          rec.ID,
		CustomerID:        rec.CustomerID,
		UserID:            rec.UserID,
		FingerprintPrefix: rec.Digest.Prefix(),
		RegisteredAt:      formatTime(rec.RegisteredAt),
	})
}

// handleVerify answers a match query.  An unknown or inactive template is a
// normal negative answer, not an error.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	ident, err := s.biometricService.Authenticate(r.Context(), req.Sample)
	if errors.Is(err, service.ErrNotFound) {
		writeJSON(w, http.StatusOK, types.VerifyResponse{OK: true, Matched: false, ServerTime: now})
		return
	}
	if err != nil {
		s.writeServiceError(w, "verify", err)
		return
	}

	writeJSON(w, http.StatusOK, types.VerifyResponse{
		OK:                true,
		Matched:           true,
		CustomerID:        ident.CustomerID,
		UserID:            ident.UserID,
		VerificationCount: ident.VerificationCount,
		ServerTime:        now,
	})
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	kind, err := store.ParseIdentityKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_identity", "kind must be customer or user")
		return
	}
	ref := store.IdentityRef{Kind: kind, ID: r.PathValue("id")}

	n, err := s.biometricService.Erase(r.Context(), ref)
	if err != nil {
		s.writeServiceError(w, "erase", err)
		return
	}

	writeJSON(w, http.StatusOK, types.EraseResponse{OK: true, Kind: string(kind), ID: ref.ID, Deleted: n})
}
