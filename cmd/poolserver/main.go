package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/guileen/connpool/api"
	"github.com/guileen/connpool/config"
	"github.com/guileen/connpool/driver/pebbledb"
	"github.com/guileen/connpool/driver/postgres"
	"github.com/guileen/connpool/logger"
	"github.com/guileen/connpool/pool"
)

func main() {
	cfg := config.Load()
	logger.Info("Starting poolserver", "addr", cfg.Addr, "pebble_path", cfg.PebblePath)

	manager := pool.NewManager()

	db, err := pebbledb.Open(cfg.PebblePath)
	if err != nil {
		logger.Error("Failed to open pebble store", "error", err, "path", cfg.PebblePath)
		os.Exit(1)
	}
	defer db.Close()

	if _, err := manager.GetOrCreate("pebble", pebbledb.NewFactory(db), cfg.Pool.PoolConfig()); err != nil {
		logger.Error("Failed to create pebble pool", "error", err)
		os.Exit(1)
	}

	if cfg.PostgresDSN != "" {
		factory, err := postgres.NewFactory(cfg.PostgresDSN)
		if err != nil {
			logger.Error("Invalid postgres DSN", "error", err)
			os.Exit(1)
		}
		if _, err := manager.GetOrCreate("postgres", factory, cfg.Pool.PoolConfig()); err != nil {
			logger.Error("Failed to create postgres pool", "error", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	api.NewRESTHandler(manager).RegisterRoutes(r)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down poolserver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown failed", "error", err)
	}
	if err := manager.CloseAll(); err != nil {
		logger.Warn("Closing pools failed", "error", err)
	}

	logger.Info("poolserver stopped")
}
