package models

import "time"

// InviteRequest is an owner-initiated invitation to a user, resolved by the
// named invitee. Same append-only lifecycle as JoinRequest.
type InviteRequest struct {
	ID        uint          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	InviterID uint          `gorm:"not null" json:"inviter_id"`
	InviteeID uint          `gorm:"not null;index" json:"invitee_id"`
	GroupID   uint          `gorm:"not null;index" json:"group_id"`
	Status    RequestStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// Relationships
	Inviter User  `gorm:"foreignKey:InviterID" json:"inviter,omitempty"`
	Invitee User  `gorm:"foreignKey:InviteeID" json:"invitee,omitempty"`
	Group   Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
