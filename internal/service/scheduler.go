package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
)

// Runner executes one publish pass.
type Runner interface {
	Run(ctx context.Context) (*RunReport, error)
}

// Scheduler triggers publish runs on a fixed interval from inside the server
// process, for deployments without an external cron.
type Scheduler struct {
	config *config.SchedulerConfig
	logger *zap.Logger
	runner Runner

	mu     sync.Mutex
	ticker *time.Ticker
	stopCh chan struct{}
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, runner Runner) *Scheduler {
	return &Scheduler{
		config: cfg,
		logger: logger,
		runner: runner,
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.Interval)
	if err != nil {
		s.logger.Error("Invalid scheduler interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("interval", s.config.Interval))

	ticker := time.NewTicker(interval)
	s.mu.Lock()
	s.ticker = ticker
	s.mu.Unlock()

	go func() {
		s.logger.Info("Running initial publish")
		s.runOnce(ctx)

		for {
			select {
			case <-ticker.C:
				s.runOnce(ctx)
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	report, err := s.runner.Run(ctx)
	duration := time.Since(start)

	if errors.Is(err, ErrRunInProgress) {
		s.logger.Info("Skipping scheduled publish, another run is in progress")
		return
	}
	if err != nil {
		s.logger.Error("Scheduled publish failed",
			zap.Error(err),
			zap.Duration("duration", duration))
		return
	}

	s.logger.Info("Scheduled publish completed",
		zap.String("message", report.Message),
		zap.Duration("duration", duration))
}
