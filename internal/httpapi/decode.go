package httpapi

import (
	"encoding/json"
	"net/http"

	"shogunrelay/internal/errs"
)

// decodeJSON reads r.Body into v, mapping any decode failure to a
// Malformed error (spec §7).
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Wrap(errs.Malformed, "body-decode", "malformed JSON body", err)
	}
	return nil
}
