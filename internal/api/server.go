// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/jobs"
	"github.com/vrsandeep/beatvault/internal/scheduler"
	"github.com/vrsandeep/beatvault/internal/store"
)

// Server holds the dependencies for our API.
type Server struct {
	app        *core.App
	store      *store.Store
	schedulers *scheduler.Holder
	logger     *zap.Logger
	jobs       *jobs.Runner

	// checks tracks cron-ping goroutines so shutdown can wait for them.
	checks sync.WaitGroup
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	logger := app.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		app:        app,
		store:      app.Store,
		schedulers: app.Schedulers,
		logger:     logger.Named("api"),
	}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// SetJobs attaches the in-process job runner so health can report on it.
func (s *Server) SetJobs(r *jobs.Runner) {
	s.jobs = r
}

// Wait blocks until cron-triggered checks handed off by the check endpoint
// have finished.
func (s *Server) Wait() {
	s.checks.Wait()
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.RequestLogger)
	r.Use(middleware.Recoverer) // Recovers from panics

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.handleGetVersion)
		r.Get("/health", s.handleHealth)

		r.Route("/scheduler", func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/status", s.handleSchedulerStatus)
			r.Post("/toggle", s.handleSchedulerToggle)
			r.Post("/run", s.handleSchedulerRun)

			// Cron ping, optionally guarded by a shared secret.
			r.With(s.CronSecretMiddleware).Get("/check", s.handleSchedulerCheck)
			r.With(s.CronSecretMiddleware).Post("/check", s.handleSchedulerCheck)

			r.Post("/sources", s.handleAddSource)
			r.Patch("/sources", s.handleUpdateSource)
			r.Delete("/sources", s.handleDeleteSource)

			r.Get("/history", s.handleGetHistory)
			r.Get("/history/sources", s.handleGetHistorySources)
			r.Get("/history/export", s.handleExportHistory)
		})
	})

	// WebSocket route
	r.Get("/ws/scheduler", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub.ServeWs(w, r)
	})

	return r
}
