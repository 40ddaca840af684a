package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// IntegrationProvider identifies a supported external provider.
type IntegrationProvider string

const (
	ProviderGitHub         IntegrationProvider = "github"
	ProviderGoogleCalendar IntegrationProvider = "googlecalendar"
)

// ParseProvider converts a provider path/query value into a known provider.
func ParseProvider(value string) (IntegrationProvider, error) {
	switch IntegrationProvider(strings.ToLower(strings.TrimSpace(value))) {
	case ProviderGitHub:
		return ProviderGitHub, nil
	case ProviderGoogleCalendar:
		return ProviderGoogleCalendar, nil
	default:
		return "", NewValidationError(fmt.Sprintf("unknown provider: %q", value))
	}
}

// Integration is one connected provider account for a user. Tokens are
// stored encrypted; they are never written to the row in plaintext.
type Integration struct {
	gorm.Model
	UserID            uint                `gorm:"not null;uniqueIndex:idx_integrations_user_provider" json:"user_id"`
	Provider          IntegrationProvider `gorm:"not null;uniqueIndex:idx_integrations_user_provider" json:"provider"`
	AccessToken       string              `gorm:"not null" json:"-"`
	RefreshToken      *string             `json:"-"`
	TokenExpiresAt    *time.Time          `json:"token_expires_at,omitempty"`
	ExternalUserID    string              `json:"external_user_id"`
	ExternalUsername  string              `json:"external_username"`
	ExternalAvatarURL string              `json:"external_avatar_url"`
	LastSyncAt        *time.Time          `json:"last_sync_at,omitempty"`
	LastSyncError     *string             `json:"last_sync_error,omitempty"`
}
