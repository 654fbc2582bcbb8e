// Package server is the HTTP boundary in front of the pipeline. It
// resolves caller identity, enforces tier rate limits, and maps the
// pipeline's typed errors onto status codes. Vendor error text and
// stack traces never cross this boundary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/toorcn/checkmate/internal/config"
	"github.com/toorcn/checkmate/internal/extract"
	"github.com/toorcn/checkmate/internal/logging"
	"github.com/toorcn/checkmate/internal/otel"
	"github.com/toorcn/checkmate/internal/pipeline"
	"github.com/toorcn/checkmate/internal/platform"
	"github.com/toorcn/checkmate/internal/ratelimit"
	"github.com/toorcn/checkmate/internal/reputation"
	"github.com/toorcn/checkmate/internal/resilience"
)

// Server wraps the router and http.Server.
type Server struct {
	server     *http.Server
	pipeline   *pipeline.Pipeline
	limiter    *ratelimit.Limiter
	reputation *reputation.Store
	events     *otel.RingBuffer
	premium    map[string]bool
}

// New builds the server. reputation and events may be nil; the creators
// endpoint then reports not found and the debug endpoint stays empty.
func New(cfg config.ServerConfig, p *pipeline.Pipeline, limiter *ratelimit.Limiter, rep *reputation.Store, events *otel.RingBuffer) *Server {
	s := &Server{
		pipeline:   p,
		limiter:    limiter,
		reputation: rep,
		events:     events,
		premium:    make(map[string]bool, len(cfg.PremiumKeys)),
	}
	for _, k := range cfg.PremiumKeys {
		s.premium[k] = true
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.RequestTimeout))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	router.Get("/healthz", s.handleHealth)
	router.Get("/debug/events", s.handleDebugEvents)
	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/verify", s.handleVerify)
		r.Get("/creators/{platform}/{creator}", s.handleCreator)
	})

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
	}
	return s
}

// ListenAndServe starts serving. Blocks until shutdown or failure.
func (s *Server) ListenAndServe() error {
	logging.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type verifyRequest struct {
	URL string `json:"url"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Context any    `json:"context,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: "request body must be JSON with a url field"})
		return
	}

	id := s.identify(r)
	if s.limiter != nil {
		if err := s.limiter.Check(r.Context(), id, ratelimit.OpVerify); err != nil {
			s.writeError(w, err)
			return
		}
	}

	res, err := s.pipeline.Process(r.Context(), req.URL, id, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCreator(w http.ResponseWriter, r *http.Request) {
	platformName := chi.URLParam(r, "platform")
	creator := chi.URLParam(r, "creator")
	if s.reputation == nil {
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Message: "creator history is not enabled"})
		return
	}
	stats, err := s.reputation.Stats(r.Context(), platformName, creator)
	if err != nil {
		logging.Error("creator stats lookup failed", "creator", creator, "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Code: "internal_error", Message: "something went wrong"})
		return
	}
	if stats == nil {
		writeJSON(w, http.StatusNotFound, apiError{Code: "not_found", Message: "creator has no recorded analyses"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDebugEvents exposes the most recent observability events for
// live inspection. ?request= narrows to one verification, ?kind= to one
// event kind, ?n= caps the count.
func (s *Server) handleDebugEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSON(w, http.StatusOK, []otel.Event{})
		return
	}
	q := r.URL.Query()
	if rid := q.Get("request"); rid != "" {
		writeJSON(w, http.StatusOK, s.events.Request(rid))
		return
	}
	n := 100
	if v, err := strconv.Atoi(q.Get("n")); err == nil && v > 0 && v <= s.events.Cap() {
		n = v
	}
	if kind := q.Get("kind"); kind != "" {
		writeJSON(w, http.StatusOK, s.events.Kind(otel.EventKind(kind), n))
		return
	}
	writeJSON(w, http.StatusOK, s.events.Last(n))
}

// identify resolves the caller: a bearer token makes an authenticated
// (or premium) identity keyed by the token subject, anything else falls
// back to the client address at the anonymous tier.
func (s *Server) identify(r *http.Request) ratelimit.Identity {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		token = strings.TrimSpace(token)
		if token != "" {
			tier := ratelimit.TierAuthenticated
			if s.premium[token] {
				tier = ratelimit.TierPremium
			}
			return ratelimit.Identity{Key: "token:" + token, Tier: tier}
		}
	}
	return ratelimit.Identity{Key: "ip:" + clientIP(r), Tier: ratelimit.TierAnonymous}
}

func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 && !strings.HasSuffix(addr, "]") {
		addr = addr[:i]
	}
	return strings.Trim(addr, "[]")
}

// writeError maps typed failures onto status codes. Unknown errors are
// logged in full and surfaced as a generic 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		valErr     *platform.ValidationError
		limitErr   *ratelimit.Error
		extractErr *extract.Error
		openErr    *resilience.BreakerOpenError
		timeoutErr *resilience.TimeoutError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, apiError{Code: "validation_error", Message: valErr.Error()})
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.RetryAfter/time.Second)))
		writeJSON(w, http.StatusTooManyRequests, apiError{
			Code:    "rate_limited",
			Message: "rate limit exceeded",
			Context: map[string]any{"retryAfter": int(limitErr.RetryAfter / time.Second)},
		})
	case errors.As(err, &openErr):
		writeJSON(w, http.StatusServiceUnavailable, apiError{Code: "service_unavailable", Message: "a required service is temporarily unavailable"})
	case errors.As(err, &timeoutErr):
		writeJSON(w, http.StatusGatewayTimeout, apiError{Code: "timeout", Message: "the request took too long to process"})
	case errors.As(err, &extractErr):
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Code:    "extraction_failed",
			Message: "content could not be extracted from the URL",
			Context: map[string]any{"platform": extractErr.Platform.String()},
		})
	default:
		logging.Error("unhandled error at the boundary", "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Code: "internal_error", Message: "something went wrong"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", "error", err)
	}
}
