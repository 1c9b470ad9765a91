package httpapi

import (
	"net/http"
	"time"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/errs"
)

// handleSessionCreate implements POST /api/v1/auth/session: a wallet
// principal exchanges its per-request signature for a `relay_session`
// cookie (spec §4.4's session branch), so subsequent requests can skip
// re-signing the challenge string on every call.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r)
	if p.Variant != auth.VariantWallet {
		writeError(w, errs.New(errs.Unauthenticated, "session-requires-wallet", "minting a session requires wallet signature authentication"), nil, "")
		return
	}

	token, err := s.sessions.Issue(p.Address, clientIP(r))
	if err != nil {
		writeError(w, err, nil, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "relay_session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
	})
	writeOK(w, http.StatusCreated, envelope{"address": p.Address})
}

// handleSessionDelete implements DELETE /api/v1/auth/session ("logout"):
// revokes the ledger-side session row backing the caller's cookie and
// clears it, per spec §4.4's session-revocation note.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie("relay_session")
	if err != nil {
		writeOK(w, http.StatusOK, envelope{})
		return
	}

	if jti := s.sessions.JTIOf(c.Value); jti != "" {
		_ = s.sessions.Revoke(jti)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "relay_session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	writeOK(w, http.StatusOK, envelope{})
}
