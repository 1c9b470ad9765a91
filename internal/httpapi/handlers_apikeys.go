package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
)

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if principalFrom(r).Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "admin-only", "api key management requires admin auth"), nil, "")
		return false
	}
	return true
}

// handleApiKeyCreate implements POST /api/v1/api-keys (admin only).
func (s *Server) handleApiKeyCreate(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}

	var req struct {
		Name          string `json:"name"`
		OwnerScope    string `json:"ownerScope"`
		ExpiresInDays int64  `json:"expiresInDays"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}
	if req.OwnerScope == "" {
		req.OwnerScope = "admin"
	}

	var expiresAt time.Time
	if req.ExpiresInDays > 0 {
		expiresAt = time.Now().Add(time.Duration(req.ExpiresInDays) * 24 * time.Hour)
	}

	token, record, err := auth.GenerateApiKey(req.Name, req.OwnerScope, expiresAt)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	if err := s.ledger.PutApiKey(record); err != nil {
		writeError(w, err, nil, "")
		return
	}

	writeOK(w, http.StatusCreated, envelope{"token": token, "keyId": record.KeyID, "key": record})
}

// handleApiKeyList implements GET /api/v1/api-keys (admin only). The
// hashed token material is the only secret on the record, and is already
// safe to return (it is not the bearer token itself).
func (s *Server) handleApiKeyList(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	keys, err := s.ledger.ListApiKeys()
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"keys": keys})
}

// handleApiKeyDelete implements DELETE /api/v1/api-keys/{keyId}.
func (s *Server) handleApiKeyDelete(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	keyID := chi.URLParam(r, "keyId")
	if err := s.ledger.DeleteApiKey(keyID); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{})
}
