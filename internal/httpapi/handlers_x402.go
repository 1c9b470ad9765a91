package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
)

// handleSubscribe implements POST /api/v1/x402/subscribe (spec §4.6, §6.1).
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantWallet {
		writeError(w, errs.New(errs.Unauthenticated, "subscribe-requires-wallet", "subscribing requires wallet authentication"), nil, "")
		return
	}

	var req struct {
		Tier           string `json:"tier"`
		PaymentPayload string `json:"paymentPayload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}

	sub, err := s.subs.Subscribe(p.Address, req.Tier, []byte(req.PaymentPayload))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"subscription": sub})
}

// handleSubscriptionStatus implements GET /api/v1/x402/subscription/{addr}
// (public). A nil record reports {active:false} per spec §4.6.
func (s *Server) handleSubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	sub, err := s.subs.GetSubscription(addr)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	if sub == nil {
		writeOK(w, http.StatusOK, envelope{"active": false})
		return
	}
	writeOK(w, http.StatusOK, envelope{"active": sub.Active(nowUnix()), "subscription": sub})
}

// handleSubscriptionReset implements the admin-only
// POST /api/v1/x402/subscription/{addr}/reset: storage usage is cleared
// only by explicit admin action, never by the client itself (spec.md §3).
func (s *Server) handleSubscriptionReset(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantAdmin {
		writeError(w, errs.New(errs.Forbidden, "admin-only", "resetting storage usage requires admin auth"), nil, "")
		return
	}

	addr := chi.URLParam(r, "addr")
	sub, err := s.subs.GetSubscription(addr)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	if sub == nil {
		writeError(w, errs.New(errs.NotFound, "no-subscription", "no subscription for this address"), nil, "")
		return
	}
	sub.StorageUsedBytes = 0
	if err := s.ledger.PutSubscription(sub); err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"subscription": sub})
}

// handleTiers implements GET /api/v1/x402/tiers (public).
func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	live, err := s.ledger.TotalLiveBytes()
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	tiers, usage := s.subs.ListTiers(live)
	writeOK(w, http.StatusOK, envelope{"tiers": tiers, "usage": usage})
}
