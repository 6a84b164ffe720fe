package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/buildledger/heron/internal/docstore"
	"github.com/buildledger/heron/internal/domain"
	"github.com/buildledger/heron/internal/engine"
	"github.com/buildledger/heron/internal/rules"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, docs *docstore.Store, extractor domain.Extractor, eng *engine.Engine, screening *rules.Engine, version string) *Server {
	handler := NewHandler(repo, cache, bus, docs, extractor, eng, screening, cfg.MaxUploadBytes, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(MetricsMiddleware)      // Prometheus request metrics
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Operational endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", MetricsHandler())

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Bill upload and retrieval
		r.Post("/bills", handler.UploadBill)
		r.Get("/bills", handler.ListBills)
		r.Get("/bills/project/{projectID}", handler.ListBillsByProject)
		r.Get("/bills/{id}", handler.GetBill)
		r.Get("/bills/{id}/report", handler.GetBillReport)

		// Approval workflow
		r.Post("/bills/{id}/approve", handler.ApproveBill)
		r.Post("/bills/{id}/reject", handler.RejectBill)
		r.Post("/bills/{id}/reanalyze", handler.ReanalyzeBill)

		// Project budgets
		r.Post("/projects", handler.CreateProject)
		r.Get("/projects", handler.ListProjects)
		r.Get("/projects/{id}/budget", handler.GetProjectBudget)

		// Screening rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
