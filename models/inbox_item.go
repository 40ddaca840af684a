package models

import (
	"time"

	"gorm.io/gorm"
)

// InboxSource records where an inbox item came from.
type InboxSource string

const (
	InboxSourceManual         InboxSource = "manual"
	InboxSourceGitHub         InboxSource = "github"
	InboxSourceGoogleCalendar InboxSource = "googlecalendar"
)

// InboxItemType classifies an inbox item.
type InboxItemType string

const (
	InboxItemTypeTask  InboxItemType = "task"
	InboxItemTypeEvent InboxItemType = "event"
)

// InboxPriority is the triage priority of an inbox item.
type InboxPriority string

const (
	InboxPriorityLow    InboxPriority = "low"
	InboxPriorityMedium InboxPriority = "medium"
	InboxPriorityHigh   InboxPriority = "high"
)

// InboxItem is a captured to-do waiting to be scheduled into a time block.
// Synced items carry an ExternalID in the form "{provider}:{remote-id}",
// which is the dedup key: for one user there is at most one non-deleted
// item per external id.
type InboxItem struct {
	gorm.Model
	UserID        uint          `gorm:"not null;index" json:"user_id"`
	Title         string        `gorm:"not null" json:"title"`
	Description   string        `json:"description"`
	URL           string        `json:"url"`
	Source        InboxSource   `gorm:"not null;default:manual" json:"source"`
	Type          InboxItemType `gorm:"not null;default:task" json:"type"`
	Priority      InboxPriority `gorm:"not null;default:medium" json:"priority"`
	ExternalID    *string       `gorm:"index" json:"external_id,omitempty"`
	IntegrationID *uint         `gorm:"index" json:"integration_id,omitempty"`
	IsDismissed   bool          `gorm:"not null;default:false" json:"is_dismissed"`
	DismissedAt   *time.Time    `json:"dismissed_at,omitempty"`
}
