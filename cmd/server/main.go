/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, LEAVE_* variables, flags)
  2. Build the JSON logger
  3. Initialize SQLite store
  4. Create API handler and optionally seed a demo scenario
  5. Start the rollover scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port               HTTP server port (default: 8080, env LEAVE_PORT)
  -db                 SQLite database path (default: leave.db, env LEAVE_DB)
                      Use ":memory:" for in-memory database
  -log-level          debug, info, warn, error (env LEAVE_LOG_LEVEL)
  -rollover-interval  Balance rebuild interval, 0 disables (env LEAVE_ROLLOVER_INTERVAL)
  -seed               Load the "tenured" demo scenario on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # In-memory database with demo data
  ./server -db=":memory:" -seed

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - api/scheduler.go: Periodic rebuild
  - store/sqlite/sqlite.go: Database implementation
*/
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

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	logger := api.NewLogger(os.Stdout, level, cfg.Env)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	handler := api.NewHandler(store, logger)
	if cfg.Seed {
		if err := handler.LoadScenarioByID(context.Background(), "tenured"); err != nil {
			logger.Warn("failed to seed demo data", "error", err)
		}
	}

	scheduler := api.NewRolloverScheduler(handler.Service, logger)
	scheduler.CheckInterval = cfg.RolloverInterval
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, api.RouterOptions{AllowedOrigins: cfg.AllowedOrigins}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "db", cfg.DBPath, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
