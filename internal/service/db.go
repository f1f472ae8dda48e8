package service

import (
	"fmt"
	"net/url"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/cadence/internal/config"
	"github.com/ifuryst/cadence/internal/models"
)

func NewDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	logLevel := logger.Silent
	if cfg.LogQueries {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(
			&models.ContentStrategy{},
			&models.PlatformIntegration{},
			&models.PublishedContent{},
		); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return db, nil
}

// buildDSN injects the service key as the connection password unless the URL
// already carries one.
func buildDSN(cfg *config.DatabaseConfig) (string, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid database url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("invalid database url scheme %q", u.Scheme)
	}

	if _, hasPassword := u.User.Password(); !hasPassword && cfg.ServiceKey != "" {
		username := "postgres"
		if u.User != nil && u.User.Username() != "" {
			username = u.User.Username()
		}
		u.User = url.UserPassword(username, cfg.ServiceKey)
	}

	q := u.Query()
	if cfg.TimeZone != "" && q.Get("TimeZone") == "" {
		q.Set("TimeZone", cfg.TimeZone)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
