package models

import (
	"time"

	"gorm.io/gorm"
)

// TimeBlock is a scheduled block on a user's day. Blocks imported from an
// external calendar carry ExternalID/ExternalSource and are updated in
// place on re-sync instead of being duplicated.
type TimeBlock struct {
	gorm.Model
	UserID          uint       `gorm:"not null;index" json:"user_id"`
	CategoryID      uint       `gorm:"not null" json:"category_id"`
	Title           string     `gorm:"not null" json:"title"`
	Description     string     `json:"description"`
	Location        string     `json:"location"`
	URL             string     `json:"url"`
	Date            time.Time  `gorm:"not null;index" json:"date"`
	StartTime       time.Time  `gorm:"not null" json:"start_time"`
	EndTime         time.Time  `gorm:"not null" json:"end_time"`
	DurationMinutes int        `gorm:"not null" json:"duration_minutes"`
	ExternalID      *string    `gorm:"index" json:"external_id,omitempty"`
	ExternalSource  *string    `json:"external_source,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}
