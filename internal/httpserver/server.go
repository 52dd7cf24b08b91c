// Package httpserver exposes the REST and streaming endpoints of tidechat.
package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tidechat/tidechat/internal/chatstore"
	"github.com/tidechat/tidechat/internal/health"
	"github.com/tidechat/tidechat/internal/metrics"
	"github.com/tidechat/tidechat/internal/provider"
	"github.com/tidechat/tidechat/internal/session"
	"github.com/tidechat/tidechat/internal/version"
)

// Server wires the chat store, the completion provider and the session
// registry behind an HTTP router.
type Server struct {
	store    chatstore.Store
	provider provider.CompletionProvider
	registry *session.Registry
	checker  *health.Checker
	metrics  *metrics.Collector

	// streaming options
	ssePingInterval time.Duration

	// logging
	logger   *log.Logger
	logLevel string

	// embedded web UI; nil disables the static routes
	ui http.Handler
}

// New constructs a Server with the required dependencies.
func New(store chatstore.Store, completions provider.CompletionProvider) *Server {
	upstream, _ := completions.(health.Upstream)
	return &Server{
		store:    store,
		provider: completions,
		registry: session.NewRegistry(),
		checker:  health.New(health.Config{Store: store, Upstream: upstream}),
		metrics:  metrics.NewCollector(),
	}
}

// SetLogger configures the request logger and level ("debug" enables debugf).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	s.logger = logger
}

// SetSSEPingInterval enables keep-alive comment frames on streaming responses.
func (s *Server) SetSSEPingInterval(d time.Duration) { s.ssePingInterval = d }

// SetUI mounts a handler serving the embedded web interface at /.
func (s *Server) SetUI(h http.Handler) { s.ui = h }

// Registry exposes the session registry, mainly for tests.
func (s *Server) Registry() *session.Registry { return s.registry }

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(versionHeader)
	r.Use(s.recordMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/chats", func(api chi.Router) {
		api.Post("/", s.handleCreateChat)
		api.Get("/", s.handleListChats)
		api.Get("/{chatID}", s.handleChatHistory)
		api.Put("/{chatID}", s.handleRenameChat)
		api.Delete("/{chatID}", s.handleDeleteChat)
		api.Post("/{chatID}/messages", s.handleSendMessage)
		api.Post("/{chatID}/stop", s.handleStopStream)
	})

	if s.ui != nil {
		r.Handle("/*", s.ui)
	}
	return r
}

func versionHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Tidechat-Version", version.Info())
		next.ServeHTTP(w, r)
	})
}

// recordMetrics counts every request against its chi route pattern.
func (s *Server) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.metrics.RecordRequest(r.Method+" "+route, ww.Status(), time.Since(start))
	})
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

// respondStoreError maps chatstore sentinel errors onto HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		s.respondError(w, http.StatusNotFound, errors.New("chat not found"))
	case errors.Is(err, chatstore.ErrInvalidArgument):
		s.respondError(w, http.StatusBadRequest, err)
	default:
		s.respondError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checker.Check(r.Context())
	code := http.StatusOK
	if report.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	s.respondJSON(w, code, map[string]any{
		"status":     report.Status,
		"version":    version.Info(),
		"components": report.Components,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = io.WriteString(w, metrics.FormatPrometheus(s.metrics.GetSnapshot()))
}
