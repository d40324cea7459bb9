package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-history-api/internal/client"
	"github.com/kjstillabower/weather-history-api/internal/config"
	httphandler "github.com/kjstillabower/weather-history-api/internal/http"
	"github.com/kjstillabower/weather-history-api/internal/lifecycle"
	"github.com/kjstillabower/weather-history-api/internal/observability"
	"github.com/kjstillabower/weather-history-api/internal/service"
	"github.com/kjstillabower/weather-history-api/internal/store"
	"github.com/kjstillabower/weather-history-api/internal/traffic"
)

const inFlightCheckInterval = 100 * time.Millisecond

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout, logger)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	recordStore, err := openStore(startCtx, cfg, logger)
	startCancel()
	if err != nil {
		logger.Fatal("record store", zap.Error(err))
	}

	weatherService := service.NewWeatherService(weatherClient, recordStore)
	upstream := traffic.NewTracker(cfg.HealthWindow, cfg.HealthErrorPct)
	handler := httphandler.NewHandler(weatherService, recordStore, upstream, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      httphandler.NewRouter(handler, logger, cfg.CORSAllowedOrigins),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("store_backend", cfg.StoreBackend),
			zap.Strings("cors_allowed_origins", cfg.CORSAllowedOrigins))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, inFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.Flush(shutdownCtx, logger); err != nil {
		logger.Error("log flush", zap.Error(err))
	}
	if err := recordStore.Close(); err != nil {
		logger.Error("record store close", zap.Error(err))
	}
	logger.Info("shutdown complete", zap.Duration("elapsed", lifecycle.ShutdownElapsed()))
}

// openStore returns the record store selected by cfg.StoreBackend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		s, err := store.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StoreTable, cfg.StoreTimeout, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store backend: supabase", zap.String("table", cfg.StoreTable))
		return s, nil
	case config.BackendSQLite:
		s, err := store.OpenSQLite(ctx, cfg.SQLitePath, cfg.StoreTable, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("store backend: sqlite", zap.String("path", cfg.SQLitePath), zap.String("table", cfg.StoreTable))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
