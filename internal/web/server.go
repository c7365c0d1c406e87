// Package web provides the HTTP API for the import/export job engine.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/adminjobs/internal/config"
	"github.com/JonMunkholm/adminjobs/internal/core"
	mw "github.com/JonMunkholm/adminjobs/internal/web/middleware"
)

// Server is the HTTP server for the job API.
type Server struct {
	service *core.Service
	cfg     *config.Config
	limiter *mw.RateLimiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a Server serving service.
func NewServer(service *core.Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		limiter: mw.NewRateLimiter(cfg.Rate),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		r.Use(mw.Tenant)

		r.Get("/entities", s.handleListEntities)
		r.Get("/history", s.handleListHistory)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{jobID}", s.handleGetJob)
		r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
		r.Get("/jobs/{jobID}/download", s.handleDownloadExport)

		r.Get("/error-reports/{reportID}", s.handleDownloadErrorReport)

		r.Get("/{entity}/template", s.handleDownloadTemplate)

		// Enqueue endpoints are throttled per organization
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Post("/{entity}/import", s.handleImport)
			r.Post("/{entity}/export", s.handleExport)
		})
	})
}

// StartLimiterCleanup evicts idle tenant rate limiters until ctx ends.
func (s *Server) StartLimiterCleanup(ctx context.Context) {
	if s.limiter == nil {
		return
	}
	go s.limiter.Cleanup(ctx, time.Minute)
}

// Start listens on the configured address. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
