package memberships

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/authz"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

// Handler handles membership-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new memberships handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UpdateRoleRequest represents a request to change a member's role
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=admin member"`
}

// MemberResponse represents a group member in API responses
type MemberResponse struct {
	ID      uint        `json:"id"`
	GroupID uint        `json:"group_id"`
	UserID  uint        `json:"user_id"`
	Role    string      `json:"role"`
	User    models.User `json:"user"`
}

func membershipToResponse(m models.Membership) MemberResponse {
	return MemberResponse{
		ID:      m.ID,
		GroupID: m.GroupID,
		UserID:  m.UserID,
		Role:    string(m.Role),
		User:    m.User,
	}
}

// ListMine returns every membership across all groups the caller belongs to
// @Summary List members across my groups
// @Tags memberships
// @Produce json
// @Success 200 {array} MemberResponse
// @Security BearerAuth
// @Router /memberships [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var members []models.Membership
	err := h.db.Preload("User").
		Where("group_id IN (?)",
			h.db.Model(&models.Membership{}).Select("group_id").Where("user_id = ?", userID)).
		Order("group_id").
		Find(&members).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	out := make([]MemberResponse, len(members))
	for i, m := range members {
		out[i] = membershipToResponse(m)
	}
	c.JSON(http.StatusOK, out)
}

// ListForGroup returns the members of one group. A caller who is not a
// member gets an empty list rather than a 403, hiding the roster without
// revealing whether the group exists.
// @Summary List members of a group
// @Tags memberships
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {array} MemberResponse
// @Security BearerAuth
// @Router /groups/{groupId}/members [get]
func (h *Handler) ListForGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	m, err := authz.MembershipOf(h.db, groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}
	if m == nil {
		c.JSON(http.StatusOK, []MemberResponse{})
		return
	}

	var members []models.Membership
	if err := h.db.Preload("User").Where("group_id = ?", groupID).Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	out := make([]MemberResponse, len(members))
	for i, mm := range members {
		out[i] = membershipToResponse(mm)
	}
	c.JSON(http.StatusOK, out)
}

// SearchInGroup filters a group's members by name or email substring.
// Same empty-list-for-outsiders behavior as ListForGroup.
// @Summary Search members inside a group
// @Tags memberships
// @Produce json
// @Param groupId path int true "Group ID"
// @Param query query string true "Name or email substring"
// @Success 200 {array} MemberResponse
// @Failure 400 {object} map[string]string "Missing search query"
// @Security BearerAuth
// @Router /groups/{groupId}/members/search [get]
func (h *Handler) SearchInGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}

	m, err := authz.MembershipOf(h.db, groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}
	if m == nil {
		c.JSON(http.StatusOK, []MemberResponse{})
		return
	}

	var members []models.Membership
	if err := h.db.Preload("User").Where("group_id = ?", groupID).Find(&members).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	q := strings.ToLower(query)
	out := make([]MemberResponse, 0)
	for _, mm := range members {
		if strings.Contains(strings.ToLower(mm.User.Name), q) ||
			strings.Contains(strings.ToLower(mm.User.Email), q) {
			out = append(out, membershipToResponse(mm))
		}
	}
	c.JSON(http.StatusOK, out)
}

// Remove deletes someone else's membership. The caller must be the group
// owner or an admin; the owner's membership can never be removed, and an
// admin membership only by the owner.
// @Summary Remove a member from a group
// @Tags memberships
// @Produce json
// @Param groupId path int true "Group ID"
// @Param membershipId path int true "Membership ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Not permitted"
// @Failure 404 {object} map[string]string "Membership not found"
// @Security BearerAuth
// @Router /groups/{groupId}/members/{membershipId} [delete]
func (h *Handler) Remove(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}
	membershipID, ok := parseID(c, "membershipId")
	if !ok {
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var target models.Membership
	if err := h.db.Where("id = ? AND group_id = ?", membershipID, groupID).First(&target).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
		return
	}

	callerMs, err := authz.MembershipOf(h.db, groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	callerIsAdmin := callerMs != nil && callerMs.Role == models.GroupRoleAdmin

	if err := authz.RemoveMemberCheck(group, target, userID, callerIsAdmin); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Delete(&models.Membership{}, target.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove member"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// UpdateRole changes a member's role. Only the group owner may do this, and
// the owner's own admin membership cannot be demoted.
// @Summary Change a member's role
// @Tags memberships
// @Accept json
// @Produce json
// @Param membershipId path int true "Membership ID"
// @Param request body UpdateRoleRequest true "New role"
// @Success 200 {object} MemberResponse
// @Failure 400 {object} map[string]string "Invalid role value"
// @Failure 403 {object} map[string]string "Only owner can change roles"
// @Security BearerAuth
// @Router /memberships/{membershipId}/role [patch]
func (h *Handler) UpdateRole(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	membershipID, ok := parseID(c, "membershipId")
	if !ok {
		return
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role value"})
		return
	}

	var membership models.Membership
	if err := h.db.Preload("User").First(&membership, membershipID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
		return
	}

	var group models.Group
	if err := h.db.First(&group, membership.GroupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if group.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only owner can change roles"})
		return
	}
	if membership.UserID == group.OwnerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot change the owner's role"})
		return
	}

	membership.Role = models.GroupRole(req.Role)
	if err := h.db.Save(&membership).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update role"})
		return
	}

	c.JSON(http.StatusOK, membershipToResponse(membership))
}

// Leave deletes the caller's own membership record
// @Summary Leave a group by membership ID
// @Tags memberships
// @Produce json
// @Param membershipId path int true "Membership ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Not your membership"
// @Security BearerAuth
// @Router /memberships/{membershipId} [delete]
func (h *Handler) Leave(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	membershipID, ok := parseID(c, "membershipId")
	if !ok {
		return
	}

	var membership models.Membership
	if err := h.db.First(&membership, membershipID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Membership not found"})
		return
	}

	if membership.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	if !h.checkNotOwner(c, membership) {
		return
	}

	if err := h.db.Delete(&models.Membership{}, membership.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LeaveByGroup is the convenience variant keyed by group rather than
// membership id
// @Summary Leave a group by group ID
// @Tags memberships
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {object} map[string]bool
// @Failure 404 {object} map[string]string "Not a member of this group"
// @Security BearerAuth
// @Router /groups/{groupId}/leave [delete]
func (h *Handler) LeaveByGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	var membership models.Membership
	err := h.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "You are not a member of this group"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave group"})
		return
	}
	if !h.checkNotOwner(c, membership) {
		return
	}

	if err := h.db.Delete(&models.Membership{}, membership.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// checkNotOwner blocks the group owner from leaving their own group: the
// owner's membership is an invariant of the group's existence.
func (h *Handler) checkNotOwner(c *gin.Context, membership models.Membership) bool {
	var group models.Group
	if err := h.db.First(&group, membership.GroupID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to leave group"})
		return false
	}
	if group.OwnerID == membership.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "The group owner cannot leave the group"})
		return false
	}
	return true
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return uint(id), true
}

// RegisterRoutes registers membership routes. Group-scoped routes live under
// /groups, the rest under /memberships.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/memberships", h.ListMine)
	api.PATCH("/memberships/:membershipId/role", h.UpdateRole)
	api.DELETE("/memberships/:membershipId", h.Leave)
	api.GET("/groups/:groupId/members", h.ListForGroup)
	api.GET("/groups/:groupId/members/search", h.SearchInGroup)
	api.DELETE("/groups/:groupId/members/:membershipId", h.Remove)
	api.DELETE("/groups/:groupId/leave", h.LeaveByGroup)
}
