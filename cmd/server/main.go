/*
main.go - Application entry point

PURPOSE:
  Starts the recurrence engine server: SQLite store, scheduler runner,
  HTTP trigger surface, and the in-process cron trigger.

STARTUP SEQUENCE:
  1. Load configuration from environment (.env honored)
  2. Initialize logger and SQLite store
  3. Wire runner, handler, router
  4. Start cron trigger (when enabled) and HTTP server
  5. Graceful shutdown on SIGINT/SIGTERM

ENVIRONMENT:
  PORT           HTTP port (default 8080)
  DB_PATH        SQLite path, ":memory:" for in-memory (default recurrence.db)
  LOG_LEVEL      logrus level (default info)
  CRON_SECRET    shared secret for POST /api/cron/run; empty disables it
  CRON_SCHEDULE  cron spec for the in-process trigger (default every 15m)
  CRON_ENABLED   enable the in-process trigger (default true)

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: In-process periodic trigger
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/config"
	"github.com/warp/recurrence-engine/recur"
	"github.com/warp/recurrence-engine/store/sqlite"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	runner := recur.NewRunner(store, logger)
	handler := api.NewHandler(runner, store, logger, cfg.CronSecret)
	router := api.NewRouter(handler)

	var trigger *api.CronTrigger
	if cfg.CronEnabled {
		trigger = api.NewCronTrigger(runner, store, logger, cfg.CronSchedule)
		if err := trigger.Start(); err != nil {
			logger.Fatalf("Failed to start cron trigger: %v", err)
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if trigger != nil {
		trigger.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server stopped")
}
