package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/deal"
	"shogunrelay/internal/errs"
)

// handleDealCreate implements POST /api/v1/deals/create (spec §4.7, §6.1,
// §8 scenario 4).
func (s *Server) handleDealCreate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantWallet {
		writeError(w, errs.New(errs.Unauthenticated, "deal-create-requires-wallet", "creating a deal requires wallet authentication"), nil, "")
		return
	}

	var req struct {
		CID             string `json:"cid"`
		ClientAddress   string `json:"clientAddress"`
		SizeBytes       int64  `json:"sizeBytes"`
		DurationDays    int64  `json:"durationDays"`
		Tier            string `json:"tier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}

	res, err := s.deals.CreateDeal(deal.CreateRequest{
		CID:             req.CID,
		ClientAddress:   req.ClientAddress,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationDays * 24 * 3600,
		Tier:            req.Tier,
	})
	if err != nil {
		writeError(w, err, nil, "")
		return
	}

	writeOK(w, http.StatusOK, envelope{
		"dealId": res.DealID,
		"paymentRequired": envelope{
			"amountAtomic": res.PaymentRequired,
		},
	})
}

// handleDealActivate implements POST /api/v1/deals/{id}/activate.
func (s *Server) handleDealActivate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantWallet {
		writeError(w, errs.New(errs.Unauthenticated, "deal-activate-requires-wallet", "activating a deal requires wallet authentication"), nil, "")
		return
	}

	var req struct {
		PaymentPayload string `json:"paymentPayload"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, nil, "")
		return
	}

	id := chi.URLParam(r, "id")
	d, err := s.deals.ActivateDeal(id, []byte(req.PaymentPayload))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{"deal": d})
}

// handleDealVerify implements GET /api/v1/deals/{id}/verify[-proof]
// (public, spec §8 scenario 4).
func (s *Server) handleDealVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	challenge := r.URL.Query().Get("challenge")

	res, err := s.deals.VerifyDeal(id, challenge)
	if err != nil {
		writeError(w, err, nil, "")
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"verified":  res.Verified,
		"proofHash": res.ProofHash,
		"timestamp": res.Timestamp,
		"expiresAt": res.ExpiresAt,
	})
}
