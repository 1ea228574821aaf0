package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"entregas/internal/amqp"
	"entregas/internal/cli"
	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/metrics"
	"entregas/internal/services"
	"entregas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg).WithComponent(log.ComponentWorker)

	logger.Info("Starting entregas-worker", "interval", cfg.ReminderInterval.String())

	m := metrics.New()
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	be := cli.InitBackend(startupCtx, logger, cfg, m)
	cancelStartup()

	// The worker only reads; it never publishes.
	svc := services.NewLedgerService(be.Store,
		core.DefaultVehicleSettings(cfg.DefaultAverageEfficiency, cfg.DefaultFuelPrice),
		logger)
	reminders := worker.NewReminderWorker(svc, m)

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", log.FieldError, err.Error())
			}
		}()
	}

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, func() {
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	if be.AMQP != nil {
		go func() {
			err := be.AMQP.ConsumeChanges(ctx, func(ctx context.Context, ev *amqp.ChangeEvent) error {
				err := reminders.HandleChange(ctx, ev)
				m.ChangeEvent("in", err)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Change event consumption stopped", log.FieldError, err.Error())
			}
		}()
	} else {
		logger.Info("AMQP disabled, relying on periodic checks only")
	}

	if err := reminders.Run(ctx, cfg.ReminderInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reminder worker stopped", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
