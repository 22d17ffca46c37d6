package joins

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

// Handler handles join-request lifecycle requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new joins handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// JoinRequestResponse represents a join request in API responses
type JoinRequestResponse struct {
	ID        uint         `json:"id"`
	UserID    uint         `json:"user_id"`
	GroupID   uint         `json:"group_id"`
	Status    string       `json:"status"`
	CreatedAt string       `json:"created_at"`
	User      *models.User `json:"user,omitempty"`
	Group     *models.Group `json:"group,omitempty"`
}

func toResponse(jr models.JoinRequest, expand bool) JoinRequestResponse {
	resp := JoinRequestResponse{
		ID:        jr.ID,
		UserID:    jr.UserID,
		GroupID:   jr.GroupID,
		Status:    string(jr.Status),
		CreatedAt: jr.CreatedAt.UTC().Format(time.RFC3339),
	}
	if expand {
		if jr.User.ID != 0 {
			resp.User = &jr.User
		}
		if jr.Group.ID != 0 {
			resp.Group = &jr.Group
		}
	}
	return resp
}

// Send creates a pending join request for a group
// @Summary Request to join a group
// @Tags joins
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 201 {object} JoinRequestResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 409 {object} map[string]string "Already a member or already requested"
// @Security BearerAuth
// @Router /groups/{groupId}/join [post]
func (h *Handler) Send(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil || group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if group.OwnerID == userID {
		c.JSON(http.StatusConflict, gin.H{"error": "You already own this group"})
		return
	}
	m, err := authz.MembershipOf(h.db, groupID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create join request"})
		return
	}
	if m != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Already a member of this group"})
		return
	}

	var pending int64
	h.db.Model(&models.JoinRequest{}).
		Where("user_id = ? AND group_id = ? AND status = ?", userID, groupID, models.RequestStatusPending).
		Count(&pending)
	if pending > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Join request already pending"})
		return
	}

	jr := models.JoinRequest{
		UserID:  userID,
		GroupID: groupID,
		Status:  models.RequestStatusPending,
	}
	if err := h.db.Create(&jr).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create join request"})
		return
	}

	c.JSON(http.StatusCreated, toResponse(jr, false))
}

// ListMine returns the caller's outgoing join requests, newest first,
// optionally paginated with page/per_page
// @Summary List my join requests
// @Tags joins
// @Produce json
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {array} JoinRequestResponse
// @Security BearerAuth
// @Router /join-requests [get]
func (h *Handler) ListMine(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	query := h.db.Preload("Group").Preload("User").
		Where("user_id = ?", userID).
		Order("created_at DESC")

	if c.Query("page") != "" || c.Query("per_page") != "" {
		page, perPage := pagination(c)
		var total int64
		h.db.Model(&models.JoinRequest{}).Where("user_id = ?", userID).Count(&total)

		var items []models.JoinRequest
		if err := query.Offset((page - 1) * perPage).Limit(perPage).Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list join requests"})
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

	var items []models.JoinRequest
	if err := query.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list join requests"})
		return
	}
	c.JSON(http.StatusOK, expandAll(items))
}

// ListForGroup returns a group's pending join requests to its owner or an
// admin member
// @Summary List pending join requests for a group
// @Tags joins
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {array} JoinRequestResponse
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Security BearerAuth
// @Router /groups/{groupId}/join-requests [get]
func (h *Handler) ListForGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	allowed, err := authz.CanManageGroup(h.db, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Owner or admin access required"})
		return
	}

	var items []models.JoinRequest
	err = h.db.Preload("User").
		Where("group_id = ? AND status = ?", groupID, models.RequestStatusPending).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list join requests"})
		return
	}
	c.JSON(http.StatusOK, expandAll(items))
}

// Approve marks a pending request approved and creates the membership in the
// same transaction. Terminal requests answer 409.
// @Summary Approve a join request
// @Tags joins
// @Produce json
// @Param requestId path int true "Join request ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Failure 409 {object} map[string]string "Request already resolved"
// @Security BearerAuth
// @Router /join-requests/{requestId}/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	h.resolve(c, true)
}

// Reject marks a pending request rejected. Terminal requests answer 409.
// @Summary Reject a join request
// @Tags joins
// @Produce json
// @Param requestId path int true "Join request ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Failure 409 {object} map[string]string "Request already resolved"
// @Security BearerAuth
// @Router /join-requests/{requestId}/reject [post]
func (h *Handler) Reject(c *gin.Context) {
	h.resolve(c, false)
}

func (h *Handler) resolve(c *gin.Context, approve bool) {
	userID, _ := auth.GetUserID(c)
	requestID, ok := parseID(c, "requestId")
	if !ok {
		return
	}

	var jr models.JoinRequest
	if err := h.db.First(&jr, requestID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Join request not found"})
		return
	}

	var group models.Group
	if err := h.db.First(&group, jr.GroupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	allowed, err := authz.CanManageGroup(h.db, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Owner or admin access required"})
		return
	}

	if !authz.Resolvable(jr.Status) {
		c.JSON(http.StatusConflict, gin.H{"error": "Request already resolved"})
		return
	}

	newStatus := models.RequestStatusRejected
	if approve {
		newStatus = models.RequestStatusApproved
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.JoinRequest{}).Where("id = ?", jr.ID).Update("status", newStatus).Error; err != nil {
			return err
		}
		if !approve {
			return nil
		}
		// The requester may have been added through another path meanwhile
		var existing int64
		if err := tx.Model(&models.Membership{}).
			Where("user_id = ? AND group_id = ?", jr.UserID, jr.GroupID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}
		return tx.Create(&models.Membership{
			UserID:  jr.UserID,
			GroupID: jr.GroupID,
			Role:    models.GroupRoleMember,
		}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve join request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func expandAll(items []models.JoinRequest) []JoinRequestResponse {
	out := make([]JoinRequestResponse, len(items))
	for i, jr := range items {
		out[i] = toResponse(jr, true)
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

// RegisterRoutes registers join-request routes
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/groups/:groupId/join", h.Send)
	api.GET("/groups/:groupId/join-requests", h.ListForGroup)
	api.GET("/join-requests", h.ListMine)
	api.POST("/join-requests/:requestId/approve", h.Approve)
	api.POST("/join-requests/:requestId/reject", h.Reject)
}
