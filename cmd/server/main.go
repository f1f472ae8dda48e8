package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/server"
	"github.com/ifuryst/cadence/internal/service"
	"github.com/ifuryst/cadence/pkg/logger"
)

var (
	configPath string
	version    = "0.1.0"
	gitCommit  = "unknown"
	buildTime  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cadence",
	Short: "Cadence - Scheduled multi-platform content publisher",
	Long: `Cadence picks up generated content whose scheduled time has passed and
publishes it to the platform each item targets, recording the outcome.`,
	RunE: runServer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger endpoint and the optional internal scheduler",
	RunE:  runServer,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one publish pass and print the report as JSON",
	RunE:  runOnce,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Cadence %s\n", version)
		fmt.Printf("Git commit: %s\n", gitCommit)
		fmt.Printf("Build time: %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/server.yaml", "config file path")
	rootCmd.AddCommand(serveCmd, runCmd, versionCmd)
}

type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	runner  *service.ScheduledPublisher
	metrics *service.Metrics
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: appLogger, metrics: service.NewMetrics()}

	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		a.closers = append(a.closers, sqlDB.Close)
	}

	lock, closeLock, err := service.NewRunLock(ctx, cfg.Redis, appLogger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeLock)

	store := service.NewGormStore(db)
	manager, err := service.NewPublishManager(cfg, store, a.metrics, appLogger.Named("publisher"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register publishers: %w", err)
	}

	recorder := service.NewRecorder(store, appLogger, cfg.Publisher.RetryFailedResults)
	a.runner = service.NewScheduledPublisher(store, manager, recorder, appLogger, service.ScheduledPublisherOptions{
		BatchSize:   cfg.Publisher.BatchSize,
		Concurrency: cfg.Publisher.Concurrency,
		Lock:        lock,
		Metrics:     a.metrics,
	})

	appLogger.Info("Publishers ready", zap.Strings("platforms", manager.GetAvailablePlatforms()))
	return a, nil
}

func runServer(*cobra.Command, []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("Starting Cadence server", zap.String("version", version))

	srv := server.NewServer(a.cfg, a.logger, a.runner, a.metrics)

	go func() {
		if err := srv.Start(ctx); err != nil {
			a.logger.Error("Server failed to start", zap.Error(err))
			cancel()
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		a.logger.Info("Shutting down server...")
	case <-ctx.Done():
		a.logger.Info("Server context cancelled")
	}

	// Graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	a.logger.Info("Server exited")
	return nil
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.runner.Run(ctx)
	if errors.Is(err, service.ErrRunInProgress) {
		a.logger.Info("Another publish run is in progress")
		return err
	}
	if err != nil {
		return fmt.Errorf("publish run failed: %w", err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
