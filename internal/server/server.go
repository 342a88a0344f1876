// Package server provides the HTTP server and routing for the aggregator.
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

	"github.com/aristath/aggregator/internal/config"
	"github.com/aristath/aggregator/internal/database"
	"github.com/aristath/aggregator/internal/modules/accounts"
	"github.com/aristath/aggregator/internal/modules/connections"
	"github.com/aristath/aggregator/internal/modules/holdings"
	"github.com/aristath/aggregator/internal/modules/snapshots"
	syncmod "github.com/aristath/aggregator/internal/modules/sync"
	"github.com/aristath/aggregator/internal/modules/transactions"
	"github.com/aristath/aggregator/internal/ratelimit"
)

// Config holds server configuration and the module handlers to mount.
type Config struct {
	Port         int
	Log          zerolog.Logger
	Cfg          *config.Config
	AggregatorDB *database.DB
	CacheDB      *database.DB

	Connections  *connections.Handler
	Accounts     *accounts.Handler
	Holdings     *holdings.Handler
	Transactions *transactions.Handler
	Snapshots    *snapshots.Handler
	Sync         *syncmod.HTTPHandler

	RateLimitRules *ratelimit.Registry
	RateLimiter    *ratelimit.Limiter
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	system *SystemHandlers
}

// New creates the HTTP server with middleware and routes configured.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
		system: NewSystemHandlers(cfg.Log, cfg.Cfg.DataDir, cfg.AggregatorDB, cfg.CacheDB),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// Sync commands block on provider calls; keep the timeout generous.
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitRules != nil && s.cfg.RateLimiter != nil {
			r.Use(s.rateLimitMiddleware)
		}

		r.Route("/system", func(r chi.Router) {
			r.Get("/health", s.system.HandleSystemHealth)
			r.Get("/database", s.system.HandleDatabaseStats)
		})

		s.cfg.Connections.Routes(r)
		s.cfg.Accounts.Routes(r)
		s.cfg.Holdings.Routes(r)
		s.cfg.Transactions.Routes(r)
		s.cfg.Snapshots.Routes(r)
		s.cfg.Sync.Routes(r)
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

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
