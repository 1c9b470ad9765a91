package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"shogunrelay/internal/auth"
)

// corsMiddleware wires github.com/go-chi/cors over the configured allowed
// origins (spec §4.10 middleware chain step 1: CORS).
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "token", "X-User-Address", "X-Wallet-Signature", "X-Deal-Upload"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// requestLogger logs each request's method, path, status and duration via
// logrus, carrying chi's per-request id alongside the usual fields.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":    r.Method,
				"path":      r.URL.Path,
				"status":    ww.Status(),
				"duration":  time.Since(start),
				"requestId": middleware.GetReqID(r.Context()),
			}).Info("http: request")
		})
	}
}

// rateLimit wires go-chi/httprate's sliding-window limiter, keyed by
// client IP, per spec §4.10's "1000 req / 15 min global" and the
// per-route "100 uploads / hour" variant.
func rateLimit(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requestLimit, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// maxBody wraps the request body in http.MaxBytesReader so an oversized
// body is rejected before the handler starts streaming it (spec §4.10's
// "body-parser with per-route size limits").
func maxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate resolves the request's Principal through the multiplexer
// and stores it on the request context; it never itself rejects a
// request, since some routes (public cat, public links, tier catalog) are
// open to VariantPublic. Per-route capability checks happen in handlers,
// per spec §9 ("handlers branch on capabilities, not on the variant tag").
func authenticate(mux *auth.Multiplexer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ra := auth.RequestAuth{
				ClientIP: clientIP(r),
			}

			if tok := r.Header.Get("token"); tok != "" {
				ra.AdminTokenHeader = tok
			}
			if bearer := bearerToken(r); bearer != "" {
				if strings.HasPrefix(bearer, auth.ApiKeyPrefix) {
					ra.BearerToken = bearer
				} else if ra.AdminTokenHeader == "" {
					ra.AdminTokenHeader = bearer
				}
			}
			if c, err := r.Cookie("relay_session"); err == nil {
				ra.SessionCookie = c.Value
			}
			ra.WalletAddress = r.Header.Get("X-User-Address")
			ra.WalletSignature = r.Header.Get("X-Wallet-Signature")

			p, err := mux.Resolve(ra)
			if err != nil {
				writeError(w, err, nil, attemptedAuthHint(ra))
				return
			}
			next.ServeHTTP(w, withPrincipal(r, p))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func attemptedAuthHint(ra auth.RequestAuth) string {
	switch {
	case ra.AdminTokenHeader != "":
		return "admin-token"
	case ra.SessionCookie != "":
		return "session"
	case ra.BearerToken != "":
		return "api-key"
	case ra.WalletAddress != "" || ra.WalletSignature != "":
		return "wallet-signature"
	default:
		return "none"
	}
}

// isDealUpload reads spec §6.3's deal-upload marker: the X-Deal-Upload
// header or the ?deal= query parameter.
func isDealUpload(r *http.Request) bool {
	if r.Header.Get("X-Deal-Upload") == "true" {
		return true
	}
	return r.URL.Query().Get("deal") == "true"
}
