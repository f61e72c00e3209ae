// Package models contains data structures for the application's domain models.
package models

import "time"

// Post is an image post. Rows are hard-deleted so that a row exists only while
// its file does.
type Post struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Caption   string    `gorm:"type:text" json:"caption,omitempty"`
	ImageURL  string    `gorm:"not null;uniqueIndex" json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
