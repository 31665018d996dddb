package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"smartbee/api"
	"smartbee/config"
	"smartbee/log"
	"smartbee/services"
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

	// Validate required configuration
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	logger.Info("SmartBee telemetry service starting",
		zap.String("transport", cfg.Transport),
		zap.Float64("temperature_max", cfg.TemperatureMax),
		zap.Float64("temperature_min", cfg.TemperatureMin),
		zap.Float64("humidity_max", cfg.HumidityMax),
		zap.Float64("humidity_min", cfg.HumidityMin),
		zap.Float64("weight_min", cfg.WeightMin),
		zap.Float64("battery_min", cfg.BatteryMin),
		zap.Duration("online_window", cfg.OnlineWindow),
		zap.Duration("warning_window", cfg.WarningWindow),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize persistence gateway
	store, err := services.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	// Initialize optional Telegram notifier
	var notifier services.Notifier
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegram, err := services.NewTelegramNotifier(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram notifier", zap.Error(err))
		}
		if err := telegram.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
		notifier = telegram
	}

	// Fan-out hub owns all observer sessions
	hub := services.NewHub(logger)
	go hub.Run(ctx)

	// Node status monitor
	status := services.NewStatusMonitor(cfg, store, hub, notifier, logger)
	go status.Run(ctx)

	// Ingestion pipeline
	rules := services.NewRuleEngine(cfg)
	pipeline := services.NewPipeline(cfg, store, rules, hub, notifier, status, logger)
	workers := pipeline.Start(ctx)

	// Transport listener
	var closeTransport func()
	switch cfg.Transport {
	case "amqp":
		listener, err := services.NewAMQPListener(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize AMQP listener", zap.Error(err))
		}
		go func() {
			if err := listener.Consume(ctx, pipeline); err != nil {
				logger.Error("AMQP consumer stopped", zap.Error(err))
			}
		}()
		closeTransport = func() { listener.Close() }
	default:
		listener, err := services.NewMQTTListener(cfg, pipeline, logger)
		if err != nil {
			logger.Fatal("Failed to initialize MQTT listener", zap.Error(err))
		}
		closeTransport = listener.Close
	}

	// HTTP server: websocket endpoint, data queries, metrics
	auth := services.NewStaticTokenAuthenticator(cfg.AuthTokens)
	server := api.New(cfg, store, hub, auth, status, logger)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run(ctx)
	}()

	logger.Info("Ingestion started, waiting for sensor data",
		zap.Int("http_port", cfg.HTTPPort))

	// Wait for shutdown signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping services")
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	// Stop accepting new messages, then let workers drain
	closeTransport()
	cancel()

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Pipeline workers finished cleanly")
	case <-time.After(10 * time.Second):
		logger.Warn("Shutdown timeout reached before workers finished")
	}

	logger.Info("SmartBee telemetry service stopped")
}
