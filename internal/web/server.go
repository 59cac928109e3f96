// Package web serves the import API: starting and following imports and
// inspecting the state of mutation fed collections.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/gobimport/internal/config"
	"github.com/JonMunkholm/gobimport/internal/importer"
	appmw "github.com/JonMunkholm/gobimport/internal/web/middleware"
)

// Server is the HTTP server of the import API.
type Server struct {
	service *importer.Service
	cfg     config.ServerConfig
	router  *chi.Mux
	server  *http.Server
}

func NewServer(service *importer.Service, cfg config.ServerConfig, security config.SecurityConfig) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware(security)
	s.setupRoutes(security)
	return s
}

func (s *Server) setupMiddleware(security config.SecurityConfig) {
	s.router.Use(middleware.RequestID)
	s.router.Use(appmw.TrustedRealIP(security.TrustedProxies))
	s.router.Use(appmw.Logger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}
	s.router.Use(securityHeaders)
}

func (s *Server) setupRoutes(security config.SecurityConfig) {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Use(appmw.APIKeyAuth(security))

		r.Get("/imports", s.handleListImports)
		r.Post("/imports", s.handleStartImport)
		r.Get("/imports/queue", s.handleImportQueue)
		r.Get("/imports/{importID}", s.handleGetImport)
		r.Post("/imports/{importID}/cancel", s.handleCancelImport)

		r.Get("/mutations/{catalogue}/{collection}/{application}", s.handleMutationState)
	})
}

// Start listens until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then waits for running imports.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	return s.service.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
