package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kubenetlabs/watchrule/internal/database"
	"github.com/kubenetlabs/watchrule/internal/handlers"
	"github.com/kubenetlabs/watchrule/internal/metrics"
	"github.com/kubenetlabs/watchrule/internal/samplestore"
	"github.com/kubenetlabs/watchrule/internal/scheduler"
)

// Config holds server dependencies.
type Config struct {
	Store     database.Store
	Samples   samplestore.Store
	Scheduler *scheduler.Scheduler
}

// Server is the main HTTP server for the watch rule engine.
type Server struct {
	Router chi.Router
	Config Config
}

// New creates a new Server with all routes and middleware configured.
func New(cfg Config) *Server {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(RequestLogger)
	r.Use(CORS())
	r.Use(chimw.Recoverer)
	r.Use(MaxBodySize(1 << 20)) // 1MB max body size

	s := &Server{Router: r, Config: cfg}
	s.registerRoutes()

	return s
}

// Run starts the HTTP server on the given address.
func (s *Server) Run(addr string) error {
	slog.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router)
}

// registerRoutes mounts all API v1 route groups.
func (s *Server) registerRoutes() {
	wr := &handlers.WatchRuleHandler{
		Store:     s.Config.Store,
		Samples:   s.Config.Samples,
		Scheduler: s.Config.Scheduler,
	}
	aud := &handlers.AuditHandler{Store: s.Config.Store}

	s.Router.Get("/api/v1/health", handlers.HealthCheck)
	s.Router.Get("/api/v1/metrics", metrics.Handler().ServeHTTP)

	s.Router.Route("/api/v1", func(r chi.Router) {
		r.Route("/watchrules", func(r chi.Router) {
			r.Get("/", wr.List)
			r.Post("/", wr.Create)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", wr.Get)
				r.Put("/", wr.Update)
				r.Delete("/", wr.Delete)
				r.Post("/samples", wr.IngestSamples)
				r.Post("/evaluate", wr.Evaluate)
				r.Get("/state", wr.State)
			})
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/", aud.List)
			r.Get("/{id}", aud.Diff)
		})
	})
}
