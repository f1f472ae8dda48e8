package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ifuryst/cadence/internal/models"
)

// ContentStore is the datastore surface used by a publish run.
type ContentStore interface {
	DueContent(ctx context.Context, now time.Time, limit int) ([]models.ContentStrategy, error)
	InsertPublished(ctx context.Context, row *models.PublishedContent) error
	MarkPublished(ctx context.Context, contentID string, at time.Time) error
	AnnotateError(ctx context.Context, contentID, message string) error
}

// GormStore implements ContentStore and publisher.CredentialStore on gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DueContent returns scheduled rows whose scheduled_at has passed, oldest
// first. A limit of zero or less returns every due row.
func (s *GormStore) DueContent(ctx context.Context, now time.Time, limit int) ([]models.ContentStrategy, error) {
	var rows []models.ContentStrategy
	query := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", models.ContentStatusScheduled, now).
		Order("scheduled_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch scheduled content: %w", err)
	}
	return rows, nil
}

func (s *GormStore) ConnectedIntegration(ctx context.Context, userID, platform string) (*models.PlatformIntegration, error) {
	var integration models.PlatformIntegration
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND platform = ? AND status = ?", userID, platform, models.IntegrationStatusConnected).
		First(&integration).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch integration: %w", err)
	}
	return &integration, nil
}

func (s *GormStore) TouchIntegration(ctx context.Context, integrationID string, at time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.PlatformIntegration{}).
		Where("id = ?", integrationID).
		UpdateColumn("last_used_at", at).Error
}

func (s *GormStore) InsertPublished(ctx context.Context, row *models.PublishedContent) error {
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert published content: %w", err)
	}
	return nil
}

// MarkPublished only moves rows that are still scheduled, so a row picked up
// twice is flipped once.
func (s *GormStore) MarkPublished(ctx context.Context, contentID string, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.ContentStrategy{}).
		Where("id = ? AND status = ?", contentID, models.ContentStatusScheduled).
		UpdateColumns(map[string]any{
			"status":     models.ContentStatusPublished,
			"updated_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update content status: %w", err)
	}
	return nil
}

// AnnotateError merges the failure message into the row metadata in place.
func (s *GormStore) AnnotateError(ctx context.Context, contentID, message string) error {
	err := s.db.WithContext(ctx).
		Model(&models.ContentStrategy{}).
		Where("id = ?", contentID).
		UpdateColumn("metadata", gorm.Expr(
			"(CASE WHEN jsonb_typeof(metadata) = 'object' THEN metadata ELSE '{}'::jsonb END) || jsonb_build_object(?::text, ?::text)",
			models.MetaScheduledPublishError, message,
		)).Error
	if err != nil {
		return fmt.Errorf("failed to annotate content error: %w", err)
	}
	return nil
}
