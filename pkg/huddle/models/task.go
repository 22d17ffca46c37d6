package models

import "time"

// TaskStatus represents the workflow state of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ValidTaskStatus reports whether s is one of the recognized task statuses
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// Task belongs to a group and may be assigned to any number of users.
// IsDeleted is an explicit soft-delete flag, mirroring Group.Deleted.
type Task struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	GroupID     uint       `gorm:"not null;index" json:"group_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CreatedByID uint       `gorm:"not null;index" json:"created_by"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	IsDeleted   bool       `gorm:"default:false" json:"is_deleted"`

	// Relationships
	Group     Group          `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	CreatedBy User           `gorm:"foreignKey:CreatedByID" json:"-"`
	Assignees []TaskAssignee `gorm:"foreignKey:TaskID" json:"assignees,omitempty"`
}

// TaskAssignee links a task to one of its assigned users
type TaskAssignee struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    uint      `gorm:"not null;uniqueIndex:idx_task_user" json:"task_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_task_user" json:"user_id"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
