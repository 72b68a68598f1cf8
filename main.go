package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alertaraven/config"
	"alertaraven/log"
	"alertaraven/models"
	"alertaraven/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	time.Local = loc

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv, err := services.NewKVStoreFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize key-value store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	profiles := services.NewProfileStore(kv, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(registry)

	// Alert surface
	var surface services.AlertSurface
	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		surface = telegramService
	} else {
		logger.Warn("Telegram not configured, alerts are written to the log")
		surface = services.NewLogSurface(logger)
	}

	// Device haptics
	var haptics services.Haptics
	if cfg.DeviceAlertURL != "" {
		haptics = services.NewHapticsService(logger, cfg.DeviceAlertURL)
		logger.Info("Haptics service initialized", zap.String("url", cfg.DeviceAlertURL))
	}

	// Emergency dispatch
	var dispatcher services.Dispatcher
	if cfg.DispatchGatewayURL != "" {
		dispatcher = services.NewDispatchGateway(cfg.DispatchGatewayURL, cfg.DispatchTimeout, logger)
	} else {
		logger.Warn("Dispatch gateway not configured, emergency messages are only logged")
		dispatcher = services.NewLogDispatcher(logger)
	}

	classifier := services.NewClassifierClient(cfg.ClassifierURL, cfg.ClassifierTimeout, cfg.PlaceholderEventIDs, logger)
	reconciler := services.NewFeedbackReconciler(classifier, surface, cfg.PlaceholderEventIDs, logger)

	machine := services.NewAlertMachine(services.AlertOptionsFromConfig(cfg), profiles, surface, haptics, dispatcher, reconciler, logger, metrics)

	filter := services.NewSampleFilter(cfg.MagnitudeHigh, cfg.MagnitudeLow, cfg.MinSampleInterval, cfg.DeviceID, logger, metrics)
	orchestrator := services.NewMotionOrchestrator(classifier, machine, surface, cfg.HistorySize, logger, metrics)
	detector := services.NewLocationDetector(cfg, profiles, machine, logger)
	monitor := services.NewMonitor(filter, orchestrator, detector, machine, surface, logger)
	connectivity := services.NewConnectivityMonitor(classifier, reconciler, surface, cfg.ConnectivityProbeInterval, logger)

	rabbitMQService, err := services.NewRabbitMQService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
	}

	// Metrics endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	if err := monitor.StartMonitoring(ctx, models.AllPermissions()); err != nil {
		logger.Fatal("Failed to start monitoring", zap.Error(err))
	}

	// Device stream -> monitor
	deviceChan := make(chan *models.DeviceMessage, 100)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		monitor.Start(ctx, deviceChan)
	}()

	go func() {
		if err := rabbitMQService.Consume(ctx, deviceChan); err != nil {
			logger.Error("RabbitMQ consumer error", zap.Error(err))
			cancel()
		}
	}()

	go connectivity.Start(ctx)

	if telegramService != nil {
		go telegramService.Listen(ctx, machine, monitor)

		// Send startup notification
		if err := telegramService.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("AlertaRaven service started",
		zap.String("store", cfg.StoreBackend),
		zap.Float64("magnitude_high", cfg.MagnitudeHigh),
		zap.Float64("magnitude_low", cfg.MagnitudeLow),
		zap.Duration("sample_interval", cfg.MinSampleInterval),
		zap.Duration("countdown_dialog", cfg.CountdownDialog),
		zap.Duration("countdown_notification", cfg.CountdownNotification),
		zap.Duration("countdown_background", cfg.CountdownBackground),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping services")
	case <-ctx.Done():
		logger.Warn("Service context cancelled, stopping services")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stopping monitoring cancels any countdown; a dispatch already running is
	// allowed to finish.
	monitor.StopMonitoring(shutdownCtx)
	cancel()

	select {
	case <-streamDone:
	case <-shutdownCtx.Done():
		logger.Warn("Device stream processing did not stop in time")
	}

	if err := machine.Wait(shutdownCtx); err != nil {
		logger.Warn("Alert sessions still running at shutdown", zap.Error(err))
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping metrics server", zap.Error(err))
	}

	if err := rabbitMQService.Close(); err != nil {
		logger.Error("Error closing RabbitMQ service", zap.Error(err))
	}

	if err := kv.Close(); err != nil {
		logger.Error("Error closing key-value store", zap.Error(err))
	} else {
		logger.Info("Key-value store closed")
	}

	logger.Info("AlertaRaven service stopped")
}
