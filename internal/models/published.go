package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	PublishStatusPublished = "published"
	PublishStatusPending   = "pending"
)

// PublishedContent is the append-only audit record of one publish attempt.
type PublishedContent struct {
	ID             string            `gorm:"type:uuid;primaryKey" json:"id"`
	ContentID      string            `gorm:"type:uuid;not null;index" json:"content_id"`
	UserID         string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Platform       string            `gorm:"size:50;not null" json:"platform"`
	PublishedURL   *string           `gorm:"type:text" json:"published_url"`
	PublishedAt    time.Time         `json:"published_at"`
	Status         string            `gorm:"size:50;not null" json:"status"`
	PlatformPostID *string           `gorm:"size:255" json:"platform_post_id"`
	ErrorMessage   *string           `gorm:"type:text" json:"error_message"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (PublishedContent) TableName() string {
	return "published_content"
}
