// Package api is the HTTP surface of the server: document upload and
// retrieval, credits, transcripts, chat, the WhatsApp webhook and the live
// voice WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmbento/omnicall-ai/internal/cartridge"
	"github.com/jmbento/omnicall-ai/internal/live"
	"github.com/jmbento/omnicall-ai/internal/llm"
	"github.com/jmbento/omnicall-ai/internal/metrics"
	"github.com/jmbento/omnicall-ai/internal/service"
	"github.com/jmbento/omnicall-ai/internal/session"
	"github.com/jmbento/omnicall-ai/internal/store"
	"github.com/jmbento/omnicall-ai/internal/tools"
	"github.com/jmbento/omnicall-ai/internal/whatsapp"
)

// slowRequestThreshold is the duration above which requests log at WARN.
const slowRequestThreshold = 2 * time.Second

// Deps are the services behind the handlers.
type Deps struct {
	Store     store.Store
	Ingester  *service.Ingester
	Retriever *service.Retriever
	Jobs      *service.JobManager
	Credits   *service.Credits
	Chat      *service.Chat
	Catalog   *cartridge.Catalog
	WhatsApp  *whatsapp.Processor

	// VerifyToken answers the WhatsApp subscription handshake.
	VerifyToken string

	// Dialer, Tools and Persistence back the live endpoint; a nil Dialer
	// disables it.
	Dialer        live.Dialer
	Tools         func(cartridgeID string) (*tools.Registry, error)
	Persistence   *session.Persistence
	SessionConfig session.Config

	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Server holds the handlers.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// New creates the API server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger.With("component", "api")}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/embeddings", s.handleUpload)
		r.Get("/embeddings", s.handleRetrieve)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)

		r.Get("/credits", s.handleGetCredits)
		r.Post("/credits", s.handlePostCredits)
		r.Patch("/credits", s.handleDeductCredits)

		r.Get("/calls", s.handleListCalls)
		r.Post("/calls", s.handleCreateCall)

		r.Get("/sessions/{id}/messages", s.handleMessages)

		r.Get("/cartridges", s.handleListCartridges)
		r.Get("/cartridges/{id}", s.handleGetCartridge)

		r.Post("/chat", s.handleChat)

		r.Get("/whatsapp", s.handleWhatsAppVerify)
		r.Post("/whatsapp", s.handleWhatsAppWebhook)

		r.Get("/live", s.handleLive)
	})
	return r
}

// requestLogger logs each request with timing; slow requests log at WARN.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", duration.Milliseconds(),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		}
		switch {
		case ww.Status() >= http.StatusInternalServerError:
			s.logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold && r.URL.Path != "/api/live":
			s.logger.Warn("slow request", attrs...)
		default:
			s.logger.Debug("request completed", attrs...)
		}
	})
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes {"error": message}.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrMissingField),
		errors.Is(err, service.ErrEmptyDocument),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientCredits),
		errors.Is(err, service.ErrNoCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, cartridge.ErrUnknownCartridge):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrProviderRejected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// replaced by fallback so details do not leak.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error(fallback, "path", r.URL.Path, "error", err)
		Error(w, status, fallback)
		return
	case http.StatusServiceUnavailable:
		s.logger.Error("model provider rejected request", "path", r.URL.Path, "error", err)
		Error(w, status, "AI provider unavailable")
		return
	}
	Error(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
