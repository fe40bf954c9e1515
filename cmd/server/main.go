package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carterapp/cartera/internal/clients/yahoo"
	"github.com/carterapp/cartera/internal/config"
	"github.com/carterapp/cartera/internal/database"
	"github.com/carterapp/cartera/internal/events"
	"github.com/carterapp/cartera/internal/ledger"
	"github.com/carterapp/cartera/internal/migration"
	"github.com/carterapp/cartera/internal/quotes"
	"github.com/carterapp/cartera/internal/rates"
	"github.com/carterapp/cartera/internal/scheduler"
	"github.com/carterapp/cartera/internal/server"
	"github.com/carterapp/cartera/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Cartera")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	eventManager := events.NewManager(log)

	ledgerSvc := ledger.NewService(
		ledger.NewTransactionRepository(db.Conn(), log),
		ledger.NewPositionRepository(db.Conn(), log),
		eventManager,
		log,
	)

	// One-time import of the legacy CSV portfolio, skipped once the
	// store holds any transactions.
	migrator := migration.NewLegacyCSVMigrator(cfg.LegacyCSVPath, ledgerSvc, eventManager, log)
	if imported, err := migrator.Run(); err != nil {
		log.Fatal().Err(err).Msg("Legacy CSV migration failed")
	} else if imported > 0 {
		log.Info().Int("transactions", imported).Msg("Imported legacy CSV portfolio")
	}

	yahooClient := yahoo.NewClient(yahoo.Config{
		QuoteBaseURL:  cfg.QuoteBaseURL,
		SearchBaseURL: cfg.SearchBaseURL,
		Timeout:       time.Duration(cfg.QuoteTimeoutMs) * time.Millisecond,
	}, log)

	rateSvc := rates.NewService([]rates.RateProvider{
		rates.NewDolarAPIProvider(cfg.DolarAPIURL, time.Duration(cfg.QuoteTimeoutMs)*time.Millisecond),
		rates.NewYahooRateProvider(cfg.RateChartURL, time.Duration(cfg.QuoteTimeoutMs)*time.Millisecond),
	}, log)

	refreshSvc := quotes.NewRefreshService(yahooClient, ledgerSvc, eventManager, log)

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	var marketHours *quotes.MarketHours
	if cfg.MarketHoursGate {
		marketHours, err = quotes.NewMarketHours()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load market calendar")
		}
	}

	refreshJob := quotes.NewRefreshJob(refreshSvc, marketHours, log)
	if err := sched.AddJob(cfg.RefreshCron, refreshJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule price refresh")
	}

	// Prime prices once on startup so the UI has values before the
	// first scheduled run, regardless of market hours.
	go func() {
		if _, err := refreshSvc.RefreshAll(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Startup price refresh failed")
		}
	}()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Ledger:  ledgerSvc,
		Refresh: refreshSvc,
		Quotes:  yahooClient,
		Rates:   rateSvc,
		DevMode: cfg.DevMode,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
