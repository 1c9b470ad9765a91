package httpapi

import (
	"context"
	"net/http"

	"shogunrelay/internal/auth"
)

type ctxKey int

const principalCtxKey ctxKey = iota

func withPrincipal(r *http.Request, p auth.Principal) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), principalCtxKey, p))
}

// principalFrom returns the Principal the auth middleware resolved for r,
// or PublicPrincipal if the middleware never ran (e.g. in a unit test that
// calls a handler directly).
func principalFrom(r *http.Request) auth.Principal {
	if p, ok := r.Context().Value(principalCtxKey).(auth.Principal); ok {
		return p
	}
	return auth.PublicPrincipal()
}

// clientIP prefers X-Forwarded-For's first hop, falling back to
// RemoteAddr, for deployments sitting behind a reverse proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	return r.RemoteAddr
}
