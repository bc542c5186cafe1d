// Package server exposes the weekly archive over HTTP and lets an editor
// approve or reject a week from a browser or script.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"genzweekly/internal/config"
	"genzweekly/internal/events"
	"genzweekly/internal/logger"
	"genzweekly/internal/pipeline"
	"genzweekly/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Archive is the read side of the store the server needs
type Archive interface {
	ArchiveIndex(ctx context.Context) ([]store.ArchiveEntry, error)
	LatestWeek(ctx context.Context) (string, error)
	LoadProcessed(ctx context.Context, weekID string) (*store.ProcessedWeek, error)
	LoadArtifact(ctx context.Context, weekID, format string) (store.Artifact, error)
}

// Decider records editorial decisions and announces them. Announcing an
// approval runs the formatter and audio agents, so the server does it after
// responding.
type Decider interface {
	RecordDecision(ctx context.Context, weekID string, status store.Status, note string) (events.Event, error)
	Announce(ctx context.Context, e events.Event) error
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	archive    Archive
	decider    Decider
	config     config.Server
	log        *slog.Logger

	// Background work outlives its request and is bounded by Shutdown.
	baseCtx    context.Context
	cancelWork context.CancelFunc
	work       sync.WaitGroup
}

// New creates a new HTTP server instance
func New(archive Archive, decider Decider, cfg config.Server) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		archive: archive,
		decider: decider,
		config:  cfg,
		log:     logger.With("server"),
	}
	s.baseCtx, s.cancelWork = context.WithCancel(context.Background())

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)

	// Stay inside the connection's write deadline; decisions answer before
	// the slow follow-up work starts.
	timeout := time.Minute
	if s.config.WriteTimeout > 0 {
		timeout = s.config.WriteTimeout
	}
	s.router.Use(middleware.Timeout(timeout))

	if s.config.CORS.Enabled {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

// setupRoutes configures routes for the server
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/weeks", func(r chi.Router) {
		r.Get("/", s.handleListWeeks)
		r.Get("/latest", s.handleLatestWeek)
		r.Get("/{id}", s.handleGetWeek)
		r.Get("/{id}/artifacts/{format}", s.handleArtifact)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAdminToken)
			r.Post("/{id}/approve", s.handleDecision(true))
			r.Post("/{id}/reject", s.handleDecision(false))
		})
	})

	// Rendered pages editors open from the approval email
	s.router.Get("/weeks/{id}/report", s.handlePage(pipeline.FormatApprovalReport))
	s.router.Get("/weeks/{id}/newsletter", s.handlePage(pipeline.FormatNewsletter))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		"addr", s.httpServer.Addr,
		"read_timeout", s.config.ReadTimeout,
		"write_timeout", s.config.WriteTimeout,
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server, then waits for announced
// decisions to finish. When ctx expires first, that work is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server gracefully...")

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.work.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("Cancelling unfinished background work")
		s.cancelWork()
		<-done
	}
	s.cancelWork()

	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// goBackground runs fn detached from the request that started it.
func (s *Server) goBackground(name string, fn func(ctx context.Context) error) {
	s.work.Add(1)
	go func() {
		defer s.work.Done()
		if err := fn(s.baseCtx); err != nil {
			s.log.Error("Background work failed", "task", name, "error", err)
		}
	}()
}

// Router returns the chi router instance (useful for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
