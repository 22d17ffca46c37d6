package invites

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/authz"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

// Handler handles invite lifecycle requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new invites handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateInviteRequest represents the body for inviting a user
type CreateInviteRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// InviteResponse represents an invite in API responses
type InviteResponse struct {
	ID        uint          `json:"id"`
	InviterID uint          `json:"inviter_id"`
	InviteeID uint          `json:"invitee_id"`
	GroupID   uint          `json:"group_id"`
	Status    string        `json:"status"`
	CreatedAt string        `json:"created_at"`
	Inviter   *models.User  `json:"inviter,omitempty"`
	Group     *models.Group `json:"group,omitempty"`
}

func toResponse(inv models.InviteRequest, expand bool) InviteResponse {
	resp := InviteResponse{
		ID:        inv.ID,
		InviterID: inv.InviterID,
		InviteeID: inv.InviteeID,
		GroupID:   inv.GroupID,
		Status:    string(inv.Status),
		CreatedAt: inv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if expand {
		if inv.Inviter.ID != 0 {
			resp.Inviter = &inv.Inviter
		}
		if inv.Group.ID != 0 {
			resp.Group = &inv.Group
		}
	}
	return resp
}

// Send invites a user to a group. Only the group owner may invite.
// @Summary Invite a user to a group
// @Tags invites
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body CreateInviteRequest true "User to invite"
// @Success 201 {object} InviteResponse
// @Failure 403 {object} map[string]string "Only group owner can invite"
// @Failure 404 {object} map[string]string "Group or user not found"
// @Failure 409 {object} map[string]string "Already a member or already invited"
// @Security BearerAuth
// @Router /groups/{groupId}/invites [post]
func (h *Handler) Send(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	var req CreateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing user_id in body"})
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil || group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if group.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only group owner can invite"})
		return
	}

	var invitee models.User
	if err := h.db.First(&invitee, req.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	m, err := authz.MembershipOf(h.db, groupID, invitee.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invite"})
		return
	}
	if m != nil || invitee.ID == group.OwnerID {
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
		return
	}

	var pending int64
	h.db.Model(&models.InviteRequest{}).
		Where("invitee_id = ? AND group_id = ? AND status = ?", invitee.ID, groupID, models.RequestStatusPending).
		Count(&pending)
	if pending > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Invite already pending"})
		return
	}

	invite := models.InviteRequest{
		InviterID: userID,
		InviteeID: invitee.ID,
		GroupID:   groupID,
		Status:    models.RequestStatusPending,
	}
	if err := h.db.Create(&invite).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invite"})
		return
	}

	c.JSON(http.StatusCreated, toResponse(invite, false))
}

// ListMine returns invites addressed to the caller, newest first, optionally
// paginated with page/per_page
// @Summary List my incoming invites
// @Tags invites
// @Produce json
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {array} InviteResponse
// @Security BearerAuth
// @Router /invites [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	query := h.db.Preload("Group").Preload("Inviter").
		Where("invitee_id = ?", userID).
		Order("created_at DESC")

	if c.Query("page") != "" || c.Query("per_page") != "" {
		page, perPage := pagination(c)
		var total int64
		h.db.Model(&models.InviteRequest{}).Where("invitee_id = ?", userID).Count(&total)

		var items []models.InviteRequest
		if err := query.Offset((page - 1) * perPage).Limit(perPage).Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invites"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"page":        page,
			"per_page":    perPage,
			"total_items": total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
			"items":       expandAll(items),
		})
		return
	}

	var items []models.InviteRequest
	if err := query.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invites"})
		return
	}
	c.JSON(http.StatusOK, expandAll(items))
}

// Accept resolves a pending invite: status flips and the membership is
// created in the same transaction. Only the named invitee may accept.
// @Summary Accept an invite
// @Tags invites
// @Produce json
// @Param inviteId path int true "Invite ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Not the invitee"
// @Failure 409 {object} map[string]string "Invite already resolved"
// @Security BearerAuth
// @Router /invites/{inviteId}/accept [post]
func (h *Handler) Accept(c *gin.Context) {
	h.resolve(c, true)
}

// Reject resolves a pending invite negatively. Only the named invitee may
// reject.
// @Summary Reject an invite
// @Tags invites
// @Produce json
// @Param inviteId path int true "Invite ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Not the invitee"
// @Failure 409 {object} map[string]string "Invite already resolved"
// @Security BearerAuth
// @Router /invites/{inviteId}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, false)
}

func (h *Handler) resolve(c *gin.Context, accept bool) {
	userID, _ := auth.GetUserID(c)
	inviteID, ok := parseID(c, "inviteId")
	if !ok {
		return
	}

	var invite models.InviteRequest
	if err := h.db.First(&invite, inviteID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invite not found"})
		return
	}

	if invite.InviteeID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if !authz.Resolvable(invite.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "Invite already resolved"})
		return
	}

	newStatus := models.RequestStatusRejected
	if accept {
		newStatus = models.RequestStatusAccepted
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.InviteRequest{}).Where("id = ?", invite.ID).Update("status", newStatus).Error; err != nil {
			return err
		}
		if !accept {
			return nil
		}
		var existing int64
		if err := tx.Model(&models.Membership{}).
			Where("user_id = ? AND group_id = ?", invite.InviteeID, invite.GroupID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		return tx.Create(&models.Membership{
			UserID:  invite.InviteeID,
			GroupID: invite.GroupID,
			Role:    models.GroupRoleMember,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve invite"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func expandAll(items []models.InviteRequest) []InviteResponse {
	out := make([]InviteResponse, len(items))
	for i, inv := range items {
		out[i] = toResponse(inv, true)
	}
	return out
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if perPage < 1 {
		perPage = 50
	}
	return page, perPage
}

func parseID(c *gin.Context, param string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(param), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return 0, false
	}
	return uint(id), true
}

// RegisterRoutes registers invite routes
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/groups/:groupId/invites", h.Send)
	api.GET("/invites", h.ListMine)
	api.POST("/invites/:inviteId/accept", h.Accept)
	api.POST("/invites/:inviteId/reject", h.Reject)
}
