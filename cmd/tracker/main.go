package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fx-tracker-go/internal/blotter"
	"fx-tracker-go/internal/config"
	"fx-tracker-go/internal/database"
	"fx-tracker-go/internal/feed"
	"fx-tracker-go/internal/logger"
	"fx-tracker-go/internal/server"
	"fx-tracker-go/internal/store"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	tradeStore := store.New(db)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	marketFeed := selectFeed(ctx, &cfg.Feed, log)
	log.Info("Market data feed ready", zap.String("status", marketFeed.ConnectionStatus()))

	interval := func(seconds int) time.Duration { return time.Duration(seconds) * time.Second }
	backoff := interval(cfg.Tracker.ErrorBackoff)
	opTimeout := interval(cfg.Tracker.OpTimeout)

	reconciler := blotter.NewReconciler(log, marketFeed, tradeStore,
		interval(cfg.Tracker.ReconcileInterval), backoff, opTimeout)
	valuer := blotter.NewValuer(log, marketFeed, tradeStore,
		interval(cfg.Tracker.ValuationInterval), backoff, opTimeout)

	go reconciler.Run(ctx)
	go valuer.Run(ctx)

	// Serve the dashboard and API until shutdown.
	api := server.New(log, tradeStore, marketFeed, opTimeout)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("Starting web server", zap.String("address", httpServer.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Web server failed", zap.Error(err))
	}

	log.Info("Tracker has been shut down.")
}

// selectFeed picks the market data source once at startup. A live gateway
// that fails its probe degrades to the replay feed rather than failing the
// process; the connection status surfaces the fallback to the dashboard.
func selectFeed(ctx context.Context, cfg *config.Feed, log *zap.Logger) feed.Feed {
	if cfg.Mode != "live" {
		log.Info("Using replay feed", zap.Int64("seed", cfg.ReplaySeed))
		return feed.NewReplayFeed(cfg.ReplaySeed)
	}

	live, err := feed.NewLiveFeed(cfg, log)
	if err != nil {
		log.Warn("Could not construct live feed, falling back to replay", zap.Error(err))
		return feed.NewReplayFeed(cfg.ReplaySeed)
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, 10*time.Second)
	defer probeCancel()
	if err := live.Probe(probeCtx); err != nil {
		log.Warn("Terminal gateway unreachable, falling back to replay feed", zap.Error(err))
		return feed.NewReplayFeed(cfg.ReplaySeed)
	}

	log.Info("Connected to terminal gateway", zap.String("url", cfg.GatewayURL))
	return live
}
