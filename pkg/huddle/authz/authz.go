// Package authz centralizes the permission rules for groups, memberships,
// tasks, and comments. Handlers load the records, authz delivers the verdict.
package authz

import (
	"errors"

	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

var (
	ErrNotManager    = errors.New("only the owner or an admin can do this")
	ErrTargetIsOwner = errors.New("cannot remove the group owner")
	ErrAdminTarget   = errors.New("only the owner can remove another admin")
)

// MembershipOf returns the caller's membership in a group, or nil when the
// caller is not a member.
func MembershipOf(db *gorm.DB, groupID, userID uint) (*models.Membership, error) {
	var m models.Membership
	err := db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CanManageGroup reports whether the user may update, delete, or restore the
// group: the owner always can, and so can an admin membership holder.
func CanManageGroup(db *gorm.DB, group models.Group, userID uint) (bool, error) {
	if group.OwnerID == userID {
		return true, nil
	}
	m, err := MembershipOf(db, group.ID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Role == models.GroupRoleAdmin, nil
}

// CanViewGroup reports whether the user may see the group and its contents:
// public groups are visible to everyone, private ones to the owner and members.
func CanViewGroup(db *gorm.DB, group models.Group, userID uint) (bool, error) {
	if group.IsPublic || group.OwnerID == userID {
		return true, nil
	}
	m, err := MembershipOf(db, group.ID, userID)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// RemoveMemberCheck applies the member-removal rules in priority order:
// the caller must be the owner or an admin; the owner's membership is
// untouchable; an admin membership may only be removed by the owner.
func RemoveMemberCheck(group models.Group, target models.Membership, callerID uint, callerIsAdmin bool) error {
	isOwner := group.OwnerID == callerID
	if !isOwner && !callerIsAdmin {
		return ErrNotManager
	}
	if target.UserID == group.OwnerID {
		return ErrTargetIsOwner
	}
	if target.Role == models.GroupRoleAdmin && !isOwner {
		return ErrAdminTarget
	}
	return nil
}

// IsAssignee reports whether the user appears in the task's assignee list
func IsAssignee(assignees []models.TaskAssignee, userID uint) bool {
	for _, a := range assignees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// TaskAccess reports whether the user may read or comment on a task:
// the task creator or any assignee.
func TaskAccess(task models.Task, assignees []models.TaskAssignee, userID uint) bool {
	return task.CreatedByID == userID || IsAssignee(assignees, userID)
}

// CanDeleteTask reports whether the user may soft-delete a task: the task
// creator, the group owner, or an admin membership holder in the group.
func CanDeleteTask(db *gorm.DB, task models.Task, group models.Group, userID uint) (bool, error) {
	if task.CreatedByID == userID || group.OwnerID == userID {
		return true, nil
	}
	m, err := MembershipOf(db, group.ID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.Role == models.GroupRoleAdmin, nil
}

// CanEditComment reports whether the user may edit a comment (author only)
func CanEditComment(comment models.Comment, userID uint) bool {
	return comment.AuthorID == userID
}

// CanDeleteComment reports whether the user may soft-delete a comment:
// the comment author or the task creator.
func CanDeleteComment(comment models.Comment, task models.Task, userID uint) bool {
	return comment.AuthorID == userID || task.CreatedByID == userID
}

// Resolvable reports whether a join/invite request can still be acted on.
// pending is the only non-terminal status.
func Resolvable(status models.RequestStatus) bool {
	return status == models.RequestStatusPending
}
