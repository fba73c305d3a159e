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

	"github.com/timmy/emoreply/internal/api"
	"github.com/timmy/emoreply/internal/app"
	"github.com/timmy/emoreply/internal/config"
	"github.com/timmy/emoreply/internal/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg, app.Options{WithAudit: true})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize services")
	}
	defer func() {
		if err := application.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to release resources")
		}
	}()

	router := api.SetupRouter(application.Services(), cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		appLogger.WithError(err).Error("Server failed")
		return
	case <-quit:
	}

	appLogger.Info("Shutting down server...")

	// In-flight streams get the shutdown window to finish.
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
		return
	}

	appLogger.Info("Server exited")
}
