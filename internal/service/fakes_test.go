package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/ifuryst/cadence/internal/models"
)

// memoryStore is an in-memory ContentStore and publisher.CredentialStore.
type memoryStore struct {
	mu           sync.Mutex
	content      map[string]*models.ContentStrategy
	integrations map[string]*models.PlatformIntegration
	published    []*models.PublishedContent
	touched      map[string]time.Time

	dueErr    error
	insertErr error
	// honorCancel makes writes fail on a cancelled context like a real driver.
	honorCancel bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		content:      make(map[string]*models.ContentStrategy),
		integrations: make(map[string]*models.PlatformIntegration),
		touched:      make(map[string]time.Time),
	}
}

func (s *memoryStore) addContent(id, userID, platform string, scheduledAt time.Time, metadata map[string]any) {
	s.content[id] = &models.ContentStrategy{
		ID:               id,
		UserID:           userID,
		TargetPlatform:   platform,
		Topic:            "Title " + id,
		GeneratedContent: "Body " + id,
		Metadata:         datatypes.JSONMap(metadata),
		Status:           models.ContentStatusScheduled,
		ScheduledAt:      &scheduledAt,
	}
}

func (s *memoryStore) addIntegration(id, userID, platform, token string, expiresAt *time.Time, metadata map[string]any) {
	s.integrations[userID+"/"+platform] = &models.PlatformIntegration{
		ID:          id,
		UserID:      userID,
		Platform:    platform,
		AccessToken: token,
		ExpiresAt:   expiresAt,
		Status:      models.IntegrationStatusConnected,
		Metadata:    datatypes.JSONMap(metadata),
	}
}

func (s *memoryStore) DueContent(_ context.Context, now time.Time, limit int) ([]models.ContentStrategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}

	var rows []models.ContentStrategy
	for _, row := range s.content {
		if row.IsDue(now) {
			rows = append(rows, *row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ScheduledAt.Equal(*rows[j].ScheduledAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ScheduledAt.Before(*rows[j].ScheduledAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *memoryStore) InsertPublished(ctx context.Context, row *models.PublishedContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	s.published = append(s.published, row)
	return nil
}

func (s *memoryStore) MarkPublished(ctx context.Context, contentID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.honorCancel && ctx.Err() != nil {
		return ctx.Err()
	}
	if row, ok := s.content[contentID]; ok && row.Status == models.ContentStatusScheduled {
		row.Status = models.ContentStatusPublished
	}
	return nil
}

func (s *memoryStore) AnnotateError(_ context.Context, contentID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.content[contentID]
	if !ok {
		return nil
	}
	if row.Metadata == nil {
		row.Metadata = datatypes.JSONMap{}
	}
	row.Metadata[models.MetaScheduledPublishError] = message
	return nil
}

func (s *memoryStore) ConnectedIntegration(_ context.Context, userID, platform string) (*models.PlatformIntegration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integration, ok := s.integrations[userID+"/"+platform]
	if !ok || integration.Status != models.IntegrationStatusConnected {
		return nil, models.ErrIntegrationNotFound
	}
	return integration, nil
}

func (s *memoryStore) TouchIntegration(_ context.Context, integrationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[integrationID] = at
	return nil
}

func (s *memoryStore) publishedFor(contentID string) []*models.PublishedContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.PublishedContent
	for _, row := range s.published {
		if row.ContentID == contentID {
			out = append(out, row)
		}
	}
	return out
}
