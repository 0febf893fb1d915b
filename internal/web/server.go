// Package web provides the HTTP server and handlers for the mileage dashboard.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/milesdash/internal/config"
	"github.com/JonMunkholm/milesdash/internal/core"
	"github.com/JonMunkholm/milesdash/internal/metrics"
	mw "github.com/JonMunkholm/milesdash/internal/web/middleware"
)

// Server is the HTTP server for the dashboard.
type Server struct {
	service *core.Service
	cfg     *config.Config
	metrics *metrics.Manager
	views   *personViewCache
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance. m may be nil.
func NewServer(service *core.Service, cfg *config.Config, m *metrics.Manager) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		metrics: m,
		views:   newPersonViewCache(cfg.Cache.PersonViewSize, cfg.Cache.PersonViewTTL),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	// Built here rather than in Start so Shutdown never races the assignment.
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}
	s.router.Use(middleware.Compress(5))
	s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	// One upload limiter covers both upload routes.
	uploadLimit := s.limit(s.cfg.Rate.UploadLimit)

	s.router.Group(func(r chi.Router) {
		r.Use(s.limit(s.cfg.Rate.RequestsPerMinute))

		// Pages
		r.Get("/", s.handleDashboard)
		r.With(uploadLimit).Post("/upload", s.handleUploadForm)
		r.Post("/clear", s.handleClearForm)
		r.Post("/select", s.handleSelectForm)

		// API routes
		r.Route("/api", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Get("/overview", s.handleOverview)
			r.Get("/persons", s.handlePersons)
			r.Get("/person", s.handlePerson)
			r.Get("/person/{person}", s.handlePerson)

			r.Group(func(r chi.Router) {
				r.Use(mw.APIKeyAuth(&s.cfg.Security))
				r.With(uploadLimit).Post("/upload", s.handleAPIUpload)
				r.Post("/clear", s.handleAPIClear)
				r.Post("/select", s.handleAPISelect)
			})
		})
	})
}

// limit returns a per-IP limiter allowing perMinute requests, or a
// pass-through when rate limiting is off.
func (s *Server) limit(perMinute int) func(http.Handler) http.Handler {
	if !s.cfg.Rate.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.rateLimit(perMinute)
}

// Start begins listening for HTTP requests. It returns nil after Shutdown,
// including when Shutdown ran first.
func (s *Server) Start() error {
	slog.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server. It is safe to call before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Styles are inlined in the page; there are no scripts.
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'none'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
}
