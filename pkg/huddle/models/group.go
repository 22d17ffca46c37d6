package models

import "time"

// Group is a collaboration space containing memberships and tasks.
// Deleted is an explicit soft-delete flag: a deleted group disappears from
// every listing but its record stays fetchable by id and can be restored.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	OwnerID     uint      `gorm:"not null;index" json:"owner_id"`
	IsPublic    bool      `gorm:"default:false" json:"is_public"`
	Deleted     bool      `gorm:"default:false" json:"deleted"`

	// Relationships
	Owner   User         `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Members []Membership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Tasks   []Task       `gorm:"foreignKey:GroupID" json:"tasks,omitempty"`
}
