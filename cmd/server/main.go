// Command server exposes persisted backtest results over HTTP and runs the
// periodic cache cleanup job.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akarpos/quantfolio/internal/backtest"
	"github.com/akarpos/quantfolio/internal/cache"
	"github.com/akarpos/quantfolio/internal/config"
	"github.com/akarpos/quantfolio/internal/database"
	"github.com/akarpos/quantfolio/internal/server"
	"github.com/akarpos/quantfolio/pkg/logger"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	logger.SetGlobalLogger(log)

	cacheDB, err := database.New(cfg.CacheDBPath)
	if err != nil {
		return fmt.Errorf("opening cache database: %w", err)
	}
	defer cacheDB.Close()

	store, err := cache.New(cacheDB.Conn())
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}

	// Expired cache entries are swept nightly.
	scheduler := cron.New()
	cleanup := cache.NewCleanupJob(store, log)
	if _, err := scheduler.AddFunc("0 3 * * *", cleanup.Run); err != nil {
		return fmt.Errorf("scheduling %s: %w", cleanup.Name(), err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	results, err := backtest.NewResultStore(cfg.ResultsDir, nil, log)
	if err != nil {
		return fmt.Errorf("initializing result store: %w", err)
	}

	srv := server.New(results, cfg.Port, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
