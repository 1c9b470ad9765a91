package httpapi

import (
	"encoding/json"
	"net/http"

	"shogunrelay/internal/errs"
	"shogunrelay/internal/subscription"
)

// envelope is the {success: bool, ...} shape spec §6.1 requires of every
// JSON response.
type envelope map[string]interface{}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, status int, fields envelope) {
	body := envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// writeError maps err's Kind to an HTTP status per spec §6.1/§7 and writes
// the {success:false, error, reason} envelope. A 402 additionally carries
// the tier catalog so the client can pick one without a second round trip
// (spec §7: "402 responses include the tier catalog"). A 401 carries a
// short hint about which auth method the request attempted.
func writeError(w http.ResponseWriter, err error, tiers []subscription.Tier, attemptedAuth string) {
	kind := errs.KindOf(err)
	status := statusForKind(kind)

	body := envelope{
		"success": false,
		"error":   err.Error(),
	}
	if e, ok := errs.Of(err); ok {
		body["reason"] = e.Reason
	}
	if kind == errs.PaymentRequired && tiers != nil {
		body["tiers"] = tiers
	}
	if kind == errs.Unauthenticated && attemptedAuth != "" {
		body["authHint"] = attemptedAuth
	}
	if kind == errs.Invariant {
		// Never leak invariant-violation detail to the client (spec §7).
		body["error"] = "internal error"
		delete(body, "reason")
	}
	writeJSON(w, status, body)
}

func statusForKind(k errs.Kind) int {
	switch k {
	case errs.Malformed:
		return http.StatusBadRequest
	case errs.Unauthenticated:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Conflict:
		return http.StatusConflict
	case errs.QuotaExceeded:
		return http.StatusForbidden
	case errs.PaymentRequired, errs.PaymentInvalid:
		return http.StatusPaymentRequired
	case errs.PayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case errs.RateLimited:
		return http.StatusTooManyRequests
	case errs.Transient:
		return http.StatusServiceUnavailable
	case errs.Disabled:
		return http.StatusServiceUnavailable
	case errs.Invariant, errs.Backend:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
