package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/ifuryst/cadence/internal/models"
	"github.com/ifuryst/cadence/internal/service/publisher"
)

// ErrResultNotAccepted is returned by Record when the platform rejected the
// content and the recorder is set to keep such items scheduled.
var ErrResultNotAccepted = errors.New("platform did not accept the content")

const publishedVia = "scheduler"

// Recorder persists the outcome of one publish attempt.
type Recorder struct {
	store       ContentStore
	logger      *zap.Logger
	retryFailed bool
	now         func() time.Time
}

func NewRecorder(store ContentStore, logger *zap.Logger, retryFailed bool) *Recorder {
	return &Recorder{
		store:       store,
		logger:      logger,
		retryFailed: retryFailed,
		now:         time.Now,
	}
}

// Record inserts the published_content row for result and then moves the
// source row to published. The status moves even when the platform rejected
// the content, unless retryFailed is set, in which case a rejected item stays
// scheduled and ErrResultNotAccepted is returned.
func (r *Recorder) Record(ctx context.Context, row *models.ContentStrategy, content publisher.Content, result *publisher.Result) (*models.PublishedContent, error) {
	now := r.now()
	published := BuildPublishedContent(row, content, result, now)

	if err := r.store.InsertPublished(ctx, published); err != nil {
		return nil, err
	}

	if r.retryFailed && !result.Success {
		return published, ErrResultNotAccepted
	}

	if err := r.store.MarkPublished(ctx, row.ID, now); err != nil {
		return nil, err
	}
	return published, nil
}

// RecordFailure annotates the source row so the item is retried on the next
// run with the reason visible.
func (r *Recorder) RecordFailure(ctx context.Context, contentID string, cause error) {
	if err := r.store.AnnotateError(ctx, contentID, cause.Error()); err != nil {
		r.logger.Error("Failed to annotate content with publish error",
			zap.String("content_id", contentID),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
}

// BuildPublishedContent maps a platform result onto a published_content row.
func BuildPublishedContent(row *models.ContentStrategy, content publisher.Content, result *publisher.Result, now time.Time) *models.PublishedContent {
	status := models.PublishStatusPending
	var publishedURL *string
	if result.URL != "" {
		status = models.PublishStatusPublished
		publishedURL = &result.URL
	}

	var postID *string
	if result.PostID != "" {
		postID = &result.PostID
	}

	var errorMessage *string
	if !result.Success && result.Error != "" {
		errorMessage = &result.Error
	}

	metadata := datatypes.JSONMap{
		"platform_result": result.AsMap(),
		"scheduled":       true,
		"published_via":   publishedVia,
	}
	if row.ScheduledAt != nil {
		metadata["scheduled_at"] = row.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if schema, ok := content.Metadata.Value("schema"); ok && schema != nil {
		metadata["schema"] = schema
	} else if schema, ok := content.Metadata.Value("structured_data"); ok && schema != nil {
		metadata["schema"] = schema
	}

	return &models.PublishedContent{
		ID:             uuid.NewString(),
		ContentID:      row.ID,
		UserID:         row.UserID,
		Platform:       content.Platform,
		PublishedURL:   publishedURL,
		PublishedAt:    now,
		Status:         status,
		PlatformPostID: postID,
		ErrorMessage:   errorMessage,
		Metadata:       metadata,
	}
}
