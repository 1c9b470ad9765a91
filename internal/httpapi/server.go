// Package httpapi implements the HTTP/WebSocket surface (spec §4.10): a
// chi router composing the root middleware chain CORS -> request-id ->
// logging/recovery/in-flight tracking -> rate-limit -> auth, with body-size
// limits and upload rate limits applied per route after auth, the route
// table from spec §6.1, and an additive /ws endpoint broadcasting scheduler
// pulse events.
package httpapi

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"shogunrelay/internal/auth"
	"shogunrelay/internal/deal"
	"shogunrelay/internal/governor"
	"shogunrelay/internal/ipfsclient"
	"shogunrelay/internal/ledger"
	"shogunrelay/internal/pipeline"
	"shogunrelay/internal/storageadapter"
	"shogunrelay/internal/subscription"
)

// Config bundles the per-process tunables Server needs beyond its
// collaborators (sizes and rate-limit thresholds come from pkg/config).
type Config struct {
	CORSOrigins        []string
	MaxRequestBytes    int64
	GlobalRateLimit    int
	UploadsPerHourLimit int
	AdminToken         string
	SessionTTL         time.Duration
}

// Server wires every relay component into an HTTP surface.
type Server struct {
	router chi.Router
	log    *logrus.Logger

	mux       *auth.Multiplexer
	sessions  *auth.SessionIssuer
	pipe      *pipeline.Pipeline
	subs      *subscription.Manager
	deals     *deal.Manager
	storage   storageadapter.Adapter
	ipfs      *ipfsclient.Client
	ledger    *ledger.Ledger
	gov       *governor.Governor
	cfg       Config
	startedAt time.Time
	hub       *wsHub

	inFlight int64
}

// New builds a Server and its full route table.
func New(
	log *logrus.Logger,
	mux *auth.Multiplexer,
	sessions *auth.SessionIssuer,
	pipe *pipeline.Pipeline,
	subs *subscription.Manager,
	deals *deal.Manager,
	storage storageadapter.Adapter,
	ipfs *ipfsclient.Client,
	l *ledger.Ledger,
	gov *governor.Governor,
	cfg Config,
) *Server {
	s := &Server{
		log:       log,
		mux:       mux,
		sessions:  sessions,
		pipe:      pipe,
		subs:      subs,
		deals:     deals,
		storage:   storage,
		ipfs:      ipfs,
		ledger:    l,
		gov:       gov,
		cfg:       cfg,
		startedAt: time.Now(),
		hub:       newWsHub(),
	}
	s.router = s.buildRouter()
	return s
}

// ActiveConns reports the number of in-flight HTTP requests, wired to the
// scheduler's pulse task without scheduler depending on this package.
func (s *Server) ActiveConns() int { return int(atomic.LoadInt64(&s.inFlight)) }

// Broadcast pushes msg to every connected /ws client; cmd/relay calls it
// with each pulse record the scheduler's pulse task writes.
func (s *Server) Broadcast(msg interface{}) { s.hub.broadcast(msg) }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(corsMiddleware(s.cfg.CORSOrigins))
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(s.trackInFlight)
	r.Use(rateLimit(nonZero(s.cfg.GlobalRateLimit, 1000), 15*time.Minute))
	r.Use(authenticate(s.mux))

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/ipfs", func(r chi.Router) {
			r.With(rateLimit(nonZero(s.cfg.UploadsPerHourLimit, 100), time.Hour), maxBody(s.cfg.MaxRequestBytes)).
				Post("/upload", s.handleUpload)
			r.With(rateLimit(nonZero(s.cfg.UploadsPerHourLimit, 100), time.Hour), maxBody(s.cfg.MaxRequestBytes)).
				Post("/upload-directory", s.handleUploadDirectory)
			r.Get("/cat/{cid}", s.handleCat)
			r.Get("/cat/{cid}/*", s.handleCat)
			r.Post("/pin/add", s.handlePinAdd)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/session", s.handleSessionCreate)
			r.Delete("/session", s.handleSessionDelete)
		})

		r.Route("/x402", func(r chi.Router) {
			r.Post("/subscribe", s.handleSubscribe)
			r.Get("/subscription/{addr}", s.handleSubscriptionStatus)
			r.Post("/subscription/{addr}/reset", s.handleSubscriptionReset)
			r.Get("/tiers", s.handleTiers)
		})

		r.Route("/deals", func(r chi.Router) {
			r.Post("/create", s.handleDealCreate)
			r.Post("/{id}/activate", s.handleDealActivate)
			r.Get("/{id}/verify", s.handleDealVerify)
			r.Get("/{id}/verify-proof", s.handleDealVerify)
		})

		r.Route("/drive", func(r chi.Router) {
			r.Get("/list", s.handleDriveList)
			r.Get("/list/*", s.handleDriveList)
			r.With(maxBody(s.cfg.MaxRequestBytes)).Post("/upload/*", s.handleDriveUpload)
			r.Get("/download/*", s.handleDriveDownload)
			r.Delete("/delete/*", s.handleDriveDelete)
			r.Post("/mkdir/*", s.handleDriveMkdir)
			r.Post("/rename", s.handleDriveRename)
			r.Post("/move", s.handleDriveMove)
			r.Get("/stats", s.handleDriveStats)
			r.Get("/stats/*", s.handleDriveStats)

			r.Post("/links", s.handleLinkCreate)
			r.Get("/links", s.handleLinkList)
			r.Delete("/links/{id}", s.handleLinkDelete)
			r.Get("/public/{linkId}", s.handlePublicLink)
		})

		r.Route("/api-keys", func(r chi.Router) {
			r.Get("/", s.handleApiKeyList)
			r.Post("/", s.handleApiKeyCreate)
			r.Delete("/{keyId}", s.handleApiKeyDelete)
		})
	})

	return r
}

func (s *Server) trackInFlight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.inFlight, 1)
		defer atomic.AddInt64(&s.inFlight, -1)
		next.ServeHTTP(w, r)
	})
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
