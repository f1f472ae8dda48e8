package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ErrIntegrationNotFound is returned when a user has no connected
// integration for a platform.
var ErrIntegrationNotFound = errors.New("no connected integration")

const (
	IntegrationStatusConnected    = "connected"
	IntegrationStatusDisconnected = "disconnected"
	IntegrationStatusError        = "error"
)

// PlatformIntegration holds the stored credentials for one (user, platform)
// pair. Platform specific settings such as a GitHub repository or a Facebook
// page id live in Metadata.
type PlatformIntegration struct {
	ID           string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID       string            `gorm:"type:uuid;not null;uniqueIndex:idx_integration_user_platform" json:"user_id"`
	Platform     string            `gorm:"size:50;not null;uniqueIndex:idx_integration_user_platform" json:"platform"`
	AccessToken  string            `gorm:"type:text" json:"-"`
	RefreshToken string            `gorm:"type:text" json:"-"`
	ExpiresAt    *time.Time        `json:"expires_at"`
	Status       string            `gorm:"size:50;default:'connected'" json:"status"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	LastUsedAt   *time.Time        `json:"last_used_at"`
	CreatedAt    time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PlatformIntegration) TableName() string {
	return "platform_integrations"
}
