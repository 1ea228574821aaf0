package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"entregas/internal/cache"
	"entregas/internal/cli"
	"entregas/internal/core"
	apphttp "entregas/internal/http"
	"entregas/internal/log"
	"entregas/internal/metrics"
	"entregas/internal/report"
	"entregas/internal/services"
	"entregas/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	m := metrics.New()
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()
	be := cli.InitBackend(startupCtx, logger, cfg, m)

	reports := cache.NewLRUCache[report.MonthlyReport](24, 10*time.Minute)
	caches := cache.NewManager(logger.WithComponent(log.ComponentApp))
	caches.Register(reports)
	caches.StartCleanup(5 * time.Minute)

	opts := []services.Option{
		services.WithImportSkipHook(m.ImportSkipped),
		services.WithReportCache(reports),
	}
	if be.Notifier != nil {
		opts = append(opts, services.WithNotifier(be.Notifier))
	}
	svc := services.NewLedgerService(be.Store,
		core.DefaultVehicleSettings(cfg.DefaultAverageEfficiency, cfg.DefaultFuelPrice),
		logger, opts...)

	// Writes default settings on first run.
	if _, err := svc.LoadAll(startupCtx); err != nil {
		errType := log.ErrorTypeInternal
		if errors.Is(err, storage.ErrStorageUnavailable) {
			errType = log.ErrorTypeDatabase
		}
		logger.Error("Failed to load ledger",
			log.FieldOperation, log.OpStartup,
			log.FieldErrorType, errType,
			log.FieldError, err.Error())
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger,
		apphttp.WithMetrics(m),
		apphttp.WithRequestTimeout(cfg.RequestTimeout),
		apphttp.WithRateLimit(cfg.RateLimitPerMinute),
		apphttp.WithReadiness(be.Store.Open),
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		caches.Stop()
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting entregas server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"change_events", be.Notifier != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
