// Package server provides the HTTP server and routing for tierfolio.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/di"
	allocationhandlers "github.com/aristath/tierfolio/internal/modules/allocation/handlers"
	planninghandlers "github.com/aristath/tierfolio/internal/modules/planning/handlers"
	rebalancinghandlers "github.com/aristath/tierfolio/internal/modules/rebalancing/handlers"
	snapshothandlers "github.com/aristath/tierfolio/internal/modules/snapshots/handlers"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Port      int
	DevMode   bool
	Container *di.Container // DI container with all services
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	port           int
	devMode        bool
	container      *di.Container
	systemHandlers *SystemHandlers
	logHandlers    *LogHandlers
	eventsStream   *EventsStreamHandler
	eventsSocket   *EventsSocketHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	dataDir := cfg.Config.DataDir

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		port:      cfg.Port,
		devMode:   cfg.DevMode,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			dataDir,
			cfg.Container.ReportsRepo,
			cfg.Container.Scheduler,
			cfg.Container.ReportsDB,
		),
		logHandlers:  NewLogHandlers(cfg.Log, dataDir),
		eventsStream: NewEventsStreamHandler(cfg.Container.EventBus, dataDir, cfg.Log),
		eventsSocket: NewEventsSocketHandler(cfg.Container.EventBus, cfg.Log),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event streams are long-lived and skip the timeout and compression middleware
		r.Get("/events/stream", s.eventsStream.ServeHTTP)
		r.Get("/events/ws", s.eventsSocket.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			if !s.devMode {
				r.Use(middleware.Compress(5))
			}

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/database", s.systemHandlers.HandleDatabaseStats)
				r.Get("/disk", s.systemHandlers.HandleDiskUsage)
				r.Get("/jobs", s.systemHandlers.HandleJobsStatus)
				r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
			})

			r.Route("/logs", func(r chi.Router) {
				r.Get("/", s.logHandlers.HandleListLogs)
				r.Get("/{name}", s.logHandlers.HandleGetLogs)
			})

			planningHandler := planninghandlers.NewHandler(s.container.PlanningService, s.container.ReportsRepo, s.log)
			planningHandler.RegisterRoutes(r)

			snapshotHandler := snapshothandlers.NewHandler(s.container.Classifier, s.log)
			snapshotHandler.RegisterRoutes(r)

			allocationHandler := allocationhandlers.NewHandler(s.container.AllocationCalculator, s.container.Policies, s.log)
			allocationHandler.RegisterRoutes(r)

			rebalancingHandler := rebalancinghandlers.NewHandler(s.container.PlanningService, s.cfg.TransactionCost(), s.log)
			rebalancingHandler.RegisterRoutes(r)
		})
	})
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
