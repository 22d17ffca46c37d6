package models

import "time"

// User represents a user in the system
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `gorm:"not null" json:"name"`
	AvatarURL    string    `json:"avatar_url,omitempty"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}
