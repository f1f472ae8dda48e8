package publisher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ifuryst/cadence/internal/models"
)

// CredentialStore resolves and bumps stored platform integrations.
type CredentialStore interface {
	ConnectedIntegration(ctx context.Context, userID, platform string) (*models.PlatformIntegration, error)
	TouchIntegration(ctx context.Context, integrationID string, at time.Time) error
}

// CallObserver receives the latency and outcome of every platform call.
type CallObserver interface {
	ObservePlatformCall(platform string, duration time.Duration, outcome string)
}

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

type ManagerOptions struct {
	CallTimeout        time.Duration
	RateLimitPerMinute int
	Observer           CallObserver
	Now                func() time.Time
}

// Manager owns the platform registry and dispatches content to the
// publisher registered for its target platform.
type Manager struct {
	publishers  map[string]Publisher
	limiters    map[string]*rate.Limiter
	credentials CredentialStore
	logger      *zap.Logger
	opts        ManagerOptions
}

func NewPublishManager(logger *zap.Logger, credentials CredentialStore, opts ManagerOptions) *Manager {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		publishers:  make(map[string]Publisher),
		limiters:    make(map[string]*rate.Limiter),
		credentials: credentials,
		logger:      logger,
		opts:        opts,
	}
}

func (m *Manager) RegisterPublisher(publisher Publisher) error {
	platformName := publisher.GetPlatformName()
	if _, exists := m.publishers[platformName]; exists {
		return fmt.Errorf("publisher for platform %s already registered", platformName)
	}

	m.publishers[platformName] = publisher
	if m.opts.RateLimitPerMinute > 0 {
		m.limiters[platformName] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.opts.RateLimitPerMinute)), 1)
	}

	m.logger.Info("Publisher registered", zap.String("platform", platformName))
	return nil
}

func (m *Manager) GetPublisher(platformName string) (Publisher, error) {
	publisher, exists := m.publishers[platformName]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platformName)
	}
	return publisher, nil
}

// GetAvailablePlatforms returns the registered platform names, sorted.
func (m *Manager) GetAvailablePlatforms() []string {
	platforms := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)
	return platforms
}

// Dispatch publishes content with the publisher for content.Platform.
//
// An unknown platform yields a failed Result rather than an error so the
// attempt is still recorded. Missing credentials, rate limiter cancellation,
// timeouts and publisher errors are returned as errors.
func (m *Manager) Dispatch(ctx context.Context, content Content) (*Result, error) {
	publisher, err := m.GetPublisher(content.Platform)
	if err != nil {
		m.logger.Warn("No publisher for target platform", content.LogFields()...)
		return FailedWith(err), nil
	}

	creds, err := m.resolve(ctx, content)
	if err != nil {
		return nil, err
	}

	if limiter, ok := m.limiters[content.Platform]; ok {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s rate limiter: %w", content.Platform, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	result, err := publisher.Publish(callCtx, content, creds)
	duration := time.Since(start)

	if err != nil {
		m.observe(content.Platform, duration, OutcomeError)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s publish timed out after %s: %w", content.Platform, m.opts.CallTimeout, err)
		}
		return nil, err
	}
	if result == nil {
		m.observe(content.Platform, duration, OutcomeError)
		return nil, fmt.Errorf("%s publisher returned no result", content.Platform)
	}

	if !result.Success {
		m.observe(content.Platform, duration, OutcomeFailure)
		m.logger.Warn("Platform rejected content",
			append(content.LogFields(), zap.String("error", result.Error))...)
		return result, nil
	}

	m.observe(content.Platform, duration, OutcomeSuccess)
	if err := m.credentials.TouchIntegration(ctx, creds.IntegrationID, m.opts.Now()); err != nil {
		m.logger.Warn("Failed to update integration last_used_at",
			append(content.LogFields(), zap.Error(err))...)
	}

	m.logger.Info("Content published",
		append(content.LogFields(),
			zap.String("url", result.URL),
			zap.String("post_id", result.PostID),
			zap.Duration("duration", duration))...)

	return result, nil
}

func (m *Manager) resolve(ctx context.Context, content Content) (Credentials, error) {
	integration, err := m.credentials.ConnectedIntegration(ctx, content.UserID, content.Platform)
	if errors.Is(err, models.ErrIntegrationNotFound) {
		return Credentials{}, fmt.Errorf("%s: %w", content.Platform, ErrNotConnected)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to resolve %s credentials: %w", content.Platform, err)
	}
	return FromIntegration(integration), nil
}

func (m *Manager) observe(platform string, d time.Duration, outcome string) {
	if m.opts.Observer != nil {
		m.opts.Observer.ObservePlatformCall(platform, d, outcome)
	}
}
