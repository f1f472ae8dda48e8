package service

import (
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/internal/service/publisher/facebook"
	"github.com/ifuryst/cadence/internal/service/publisher/github"
	"github.com/ifuryst/cadence/internal/service/publisher/instagram"
	"github.com/ifuryst/cadence/internal/service/publisher/linkedin"
	"github.com/ifuryst/cadence/internal/service/publisher/medium"
	"github.com/ifuryst/cadence/internal/service/publisher/quora"
	"github.com/ifuryst/cadence/internal/service/publisher/reddit"
	"github.com/ifuryst/cadence/internal/service/publisher/shopify"
	"github.com/ifuryst/cadence/internal/service/publisher/wordpress"
)

type publisherFactory func(logger *zap.Logger, opts publisher.Options) publisher.Publisher

var publisherFactories = map[string]publisherFactory{
	publisher.PlatformGitHub:    github.NewGitHubPublisher,
	publisher.PlatformReddit:    reddit.NewRedditPublisher,
	publisher.PlatformLinkedIn:  linkedin.NewLinkedInPublisher,
	publisher.PlatformInstagram: instagram.NewInstagramPublisher,
	publisher.PlatformFacebook:  facebook.NewFacebookPublisher,
	publisher.PlatformMedium:    medium.NewMediumPublisher,
	publisher.PlatformQuora:     quora.NewQuoraPublisher,
	publisher.PlatformShopify:   shopify.NewShopifyPublisher,
	publisher.PlatformWordPress: wordpress.NewWordPressPublisher,
}

// NewPublishManager builds the dispatcher with every enabled platform
// publisher registered.
func NewPublishManager(cfg *config.Config, credentials publisher.CredentialStore, metrics *Metrics, logger *zap.Logger) (*publisher.Manager, error) {
	manager := publisher.NewPublishManager(logger, credentials, publisher.ManagerOptions{
		CallTimeout:        cfg.Publisher.Timeout(),
		RateLimitPerMinute: cfg.Publisher.RateLimitPerMinute,
		Observer:           metrics,
	})

	for _, platform := range publisher.Platforms {
		platformCfg := cfg.Platform(platform)
		if platformCfg.Disabled {
			logger.Info("Publisher disabled by config", zap.String("platform", platform))
			continue
		}

		newPublisher := publisherFactories[platform]
		p := newPublisher(logger.Named(platform), publisher.Options{
			BaseURL:   platformCfg.BaseURL,
			UserAgent: platformCfg.UserAgent,
		})
		if err := manager.RegisterPublisher(p); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
