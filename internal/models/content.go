package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/datatypes"
)

const (
	ContentStatusScheduled = "scheduled"
	ContentStatusPublished = "published"

	// MetaScheduledPublishError is the metadata key set on a content row
	// whose scheduled publish failed and will be retried.
	MetaScheduledPublishError = "scheduled_publish_error"
)

// ContentStrategy is a generated content item waiting for its scheduled
// publication on one platform.
type ContentStrategy struct {
	ID               string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID           string            `gorm:"type:uuid;not null;index" json:"user_id"`
	TargetPlatform   string            `gorm:"size:50;index" json:"target_platform"`
	Topic            string            `gorm:"type:text" json:"topic"`
	GeneratedContent string            `gorm:"type:text" json:"generated_content"`
	TargetKeywords   pq.StringArray    `gorm:"type:text[]" json:"target_keywords"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	Status           string            `gorm:"size:50;default:'draft';index" json:"status"`
	ScheduledAt      *time.Time        `gorm:"index" json:"scheduled_at"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ContentStrategy) TableName() string {
	return "content_strategy"
}

// IsDue reports whether the row would be picked up by a run at now.
func (c *ContentStrategy) IsDue(now time.Time) bool {
	return c.Status == ContentStatusScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
}
