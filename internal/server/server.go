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

	"github.com/carterapp/cartera/internal/clients/yahoo"
	"github.com/carterapp/cartera/internal/ledger"
	"github.com/carterapp/cartera/internal/quotes"
	"github.com/carterapp/cartera/internal/rates"
)

// Config holds server configuration
type Config struct {
	Port    int
	Log     zerolog.Logger
	Ledger  *ledger.Service
	Refresh *quotes.RefreshService
	Quotes  *yahoo.Client
	Rates   *rates.Service
	DevMode bool
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	ledger  *ledger.Service
	refresh *quotes.RefreshService
	quotes  *yahoo.Client
	rates   *rates.Service
	port    int
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		ledger:  cfg.Ledger,
		refresh: cfg.Refresh,
		quotes:  cfg.Quotes,
		rates:   cfg.Rates,
		port:    cfg.Port,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/positions", func(r chi.Router) {
			r.Get("/", s.handleGetPositions)
			r.Get("/summary", s.handleGetSummary)
			r.Put("/{symbol}", s.handleSetPosition)
			r.Delete("/{symbol}", s.handleDeletePosition)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", s.handleGetTransactions)
			r.Post("/", s.handleRecordTransaction)
		})

		r.Route("/refresh", func(r chi.Router) {
			r.Post("/", s.handleTriggerRefresh)
			r.Get("/status", s.handleRefreshStatus)
		})

		r.Get("/quotes/{symbol}", s.handleGetQuote)
		r.Get("/search", s.handleSearch)
		r.Get("/rates/usd-ars", s.handleGetRate)
	})
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

// Router exposes the chi router, used by httptest in handler tests
func (s *Server) Router() http.Handler {
	return s.router
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
