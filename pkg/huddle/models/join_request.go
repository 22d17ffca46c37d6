package models

import "time"

// RequestStatus represents the lifecycle state of a join or invite request.
// pending is the only non-terminal state.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusApproved RequestStatus = "approved"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// JoinRequest is a user-initiated request to join a group, resolved by the
// group owner or an admin member. Requests are append-only: resolution flips
// the status, the record is never deleted.
type JoinRequest struct {
	ID        uint          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	UserID    uint          `gorm:"not null;index" json:"user_id"`
	GroupID   uint          `gorm:"not null;index" json:"group_id"`
	Status    RequestStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
