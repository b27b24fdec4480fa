package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/stock-packs/internal/application"
	"github.com/eugenenazirov/stock-packs/internal/config"
	"github.com/eugenenazirov/stock-packs/internal/logging"
)

var signalNotify = signal.Notify

// lifecycle is the part of application.App that shutdown drives.
type lifecycle interface {
	Done() <-chan struct{}
	Err() error
	Shutdown(ctx context.Context) error
	Close() error
}

func main() {
	kingpinApp := kingpin.New("stock-packs", "Apparel stock dashboard - tracks inventory and plans pack deductions")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a dotenv file loaded before reading the environment").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	packSizesStr := kingpinApp.Flag("pack-sizes", "Comma-separated sizes covered by an all-sizes pack").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").String()
	storageBackend := kingpinApp.Flag("storage", "Inventory backend (memory, file, sqlite, postgres, firestore)").String()
	databaseURL := kingpinApp.Flag("database-url", "PostgreSQL connection string").String()
	deductionMode := kingpinApp.Flag("deduction-mode", "How deduction plans are written (best_effort, atomic)").String()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
	}

	if *port != "" {
		overrides.Port = port
	}

	if *packSizesStr != "" {
		overrides.PackSizesStr = packSizesStr
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	if *logLevel != "" {
		overrides.LogLevel = logLevel
	}

	if *storageBackend != "" {
		overrides.StorageBackend = storageBackend
	}

	if *databaseURL != "" {
		overrides.DatabaseURL = databaseURL
	}

	if *deductionMode != "" {
		overrides.DeductionMode = deductionMode
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	app, err := application.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	logger.Info("application configured",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("deduction_mode", cfg.DeductionMode),
		zap.Strings("pack_sizes", cfg.Rules.PackSizes),
	)

	if err := app.Start(ctx); err != nil {
		_ = app.Close()
		logger.Fatal("failed to start server", zap.Error(err))
	}

	shutdown(app, cfg.ShutdownGracePeriod, logger)
}

func shutdown(app lifecycle, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down server")
	case <-app.Done():
		if err := app.Err(); err != nil {
			logger.Error("server stopped unexpectedly", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
