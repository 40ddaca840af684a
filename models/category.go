package models

import "gorm.io/gorm"

// MeetingCategoryName is the fixed system category that calendar-imported
// time blocks are filed under.
const MeetingCategoryName = "Meeting"

// Category groups time blocks. System categories (UserID == nil) are seeded
// by migrations and shared by all users.
type Category struct {
	gorm.Model
	UserID   *uint  `gorm:"index" json:"user_id,omitempty"`
	Name     string `gorm:"not null" json:"name"`
	Color    string `json:"color"`
	IsSystem bool   `gorm:"not null;default:false" json:"is_system"`
}
