package models

import "time"

// Comment is attached to a task. Attachments holds a JSON-encoded list of
// attachment URLs; handlers marshal/unmarshal it at the boundary.
type Comment struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	TaskID      uint      `gorm:"not null;index" json:"task_id"`
	AuthorID    uint      `gorm:"not null" json:"author_id"`
	Contents    string    `gorm:"not null" json:"contents"`
	Attachments string    `json:"-"`
	IsDeleted   bool      `gorm:"default:false" json:"is_deleted"`

	// Relationships
	Task   Task `gorm:"foreignKey:TaskID" json:"-"`
	Author User `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}
