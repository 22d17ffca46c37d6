package groups

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/authz"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

// Handler handles group-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
	Members     []uint `json:"members"` // optional initial member user IDs
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPublic    *bool  `json:"is_public"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     uint   `json:"owner_id"`
	IsPublic    bool   `json:"is_public"`
	Deleted     bool   `json:"deleted"`
	CreatedAt   string `json:"created_at"`
	Role        string `json:"role,omitempty"` // caller's role in this group
	MemberCount int    `json:"member_count,omitempty"`
}

// MemberEntry represents an expanded membership in group detail responses
type MemberEntry struct {
	ID     uint        `json:"id"`
	UserID uint        `json:"user_id"`
	Role   string      `json:"role"`
	User   models.User `json:"user"`
}

// GroupDetailResponse bundles a group with its members and live tasks
type GroupDetailResponse struct {
	Group   GroupResponse `json:"group"`
	Members []MemberEntry `json:"members"`
	Tasks   []models.Task `json:"tasks"`
}

func groupToResponse(g models.Group) GroupResponse {
	return GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		OwnerID:     g.OwnerID,
		IsPublic:    g.IsPublic,
		Deleted:     g.Deleted,
		CreatedAt:   g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Create creates a new group, its owner admin membership, and any initial
// member memberships in a single transaction: an unknown member id aborts
// the whole create rather than leaving a half-built group behind.
// @Summary Create a group
// @Description Create a new group with the current user as owner and admin
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error or unknown member"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Public by default, matching the original API's behavior
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	// Dedup member ids and drop the owner from the list
	seen := map[uint]bool{userID: true}
	var memberIDs []uint
	for _, id := range req.Members {
		if !seen[id] {
			seen[id] = true
			memberIDs = append(memberIDs, id)
		}
	}

	var group models.Group
	err := h.db.Transaction(func(tx *gorm.DB) error {
		group = models.Group{
			Name:        req.Name,
			Description: req.Description,
			OwnerID:     userID,
			IsPublic:    isPublic,
		}
		if err := tx.Create(&group).Error; err != nil {
			return err
		}

		// Owner becomes admin
		owner := models.Membership{
			UserID:  userID,
			GroupID: group.ID,
			Role:    models.GroupRoleAdmin,
		}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}

		for _, uid := range memberIDs {
			var u models.User
			if err := tx.First(&u, uid).Error; err != nil {
				return err // unknown user id aborts the transaction
			}
			m := models.Membership{
				UserID:  uid,
				GroupID: group.ID,
				Role:    models.GroupRoleMember,
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create group"})
		return
	}

	resp := groupToResponse(group)
	resp.Role = string(models.GroupRoleAdmin)
	resp.MemberCount = 1 + len(memberIDs)
	c.JSON(http.StatusCreated, resp)
}

// List returns all non-deleted groups the current user owns or is a member of
// @Summary List my groups
// @Description Get all groups the current user owns or belongs to
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var groups []models.Group
	err := h.db.
		Where("deleted = ?", false).
		Where("owner_id = ? OR id IN (?)", userID,
			h.db.Model(&models.Membership{}).Select("group_id").Where("user_id = ?", userID)).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	out, err := h.toResponses(groups, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// Explore returns all public, non-deleted groups, newest first.
// No authentication required.
// @Summary Browse public groups
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Router /groups/explore [get]
func (h *Handler) Explore(c *gin.Context) {
	var groups []models.Group
	err := h.db.
		Where("is_public = ? AND deleted = ?", true, false).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	out := make([]GroupResponse, len(groups))
	for i, g := range groups {
		out[i] = groupToResponse(g)
	}
	c.JSON(http.StatusOK, out)
}

// Search finds groups visible to the caller whose name contains the keyword
// (case-insensitive). Soft-deleted groups never appear.
// @Summary Search groups by name
// @Tags groups
// @Produce json
// @Param q query string true "Search keyword"
// @Success 200 {array} GroupResponse
// @Failure 400 {object} map[string]string "Missing query parameter"
// @Security BearerAuth
// @Router /groups/search [get]
func (h *Handler) Search(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	keyword := strings.TrimSpace(c.Query("q"))
	if keyword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing query parameter 'q'"})
		return
	}

	var groups []models.Group
	err := h.db.
		Where("deleted = ?", false).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(keyword)+"%").
		Where("is_public = ? OR owner_id = ? OR id IN (?)", true, userID,
			h.db.Model(&models.Membership{}).Select("group_id").Where("user_id = ?", userID)).
		Order("created_at DESC").
		Find(&groups).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	out := make([]GroupResponse, len(groups))
	for i, g := range groups {
		out[i] = groupToResponse(g)
	}
	c.JSON(http.StatusOK, out)
}

// ListAdmin returns the groups where the caller holds an admin membership
// @Summary List groups I administer
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups/admin [get]
func (h *Handler) ListAdmin(c *gin.Context) {
	h.listByRole(c, models.GroupRoleAdmin)
}

// ListMember returns the groups where the caller holds a plain membership
// @Summary List groups I belong to as a member
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups/member [get]
func (h *Handler) ListMember(c *gin.Context) {
	h.listByRole(c, models.GroupRoleMember)
}

func (h *Handler) listByRole(c *gin.Context, role models.GroupRole) {
	userID, _ := auth.GetUserID(c)

	var memberships []models.Membership
	err := h.db.Preload("Group").
		Where("user_id = ? AND role = ?", userID, role).
		Order("created_at DESC").
		Find(&memberships).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	out := make([]GroupResponse, 0, len(memberships))
	for _, m := range memberships {
		if m.Group.Deleted {
			continue
		}
		resp := groupToResponse(m.Group)
		resp.Role = string(m.Role)
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

// Get returns a group with its memberships (expanded with users) and its
// live tasks. Soft-deleted groups, and private groups the caller cannot
// see, both answer 404.
// @Summary Get group details
// @Tags groups
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {object} GroupDetailResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{groupId} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	if group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	visible, err := authz.CanViewGroup(h.db, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return
	}
	if !visible {
		// Hide the group's existence from outsiders
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	var memberships []models.Membership
	if err := h.db.Preload("User").Where("group_id = ?", group.ID).Order("created_at").Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	var tasks []models.Task
	if err := h.db.Where("group_id = ? AND is_deleted = ?", group.ID, false).Order("created_at DESC").Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}

	members := make([]MemberEntry, len(memberships))
	for i, m := range memberships {
		members[i] = MemberEntry{ID: m.ID, UserID: m.UserID, Role: string(m.Role), User: m.User}
	}

	resp := groupToResponse(group)
	resp.MemberCount = len(members)
	c.JSON(http.StatusOK, GroupDetailResponse{Group: resp, Members: members, Tasks: tasks})
}

// Update updates a group's name, description, or visibility.
// Permitted for the owner or an admin membership holder.
// @Summary Update a group
// @Tags groups
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body UpdateGroupRequest true "Updated group details"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{groupId} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	if group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if !h.requireManage(c, group, userID) {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != "" {
		group.Name = req.Name
	}
	if req.Description != "" {
		group.Description = req.Description
	}
	if req.IsPublic != nil {
		group.IsPublic = *req.IsPublic
	}

	if err := h.db.Save(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	c.JSON(http.StatusOK, groupToResponse(group))
}

// Delete soft-deletes a group and cascades the soft-delete to every task in
// it, in one transaction. Permitted for the owner or an admin member.
// @Summary Soft-delete a group
// @Tags groups
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{groupId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}
	if group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}

	if !h.requireManage(c, group, userID) {
		return
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Group{}).Where("id = ?", group.ID).Update("deleted", true).Error; err != nil {
			return err
		}
		return tx.Model(&models.Task{}).Where("group_id = ?", group.ID).Update("is_deleted", true).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Restore flips a soft-deleted group back to live. Tasks that were
// soft-deleted by the cascade stay deleted.
// @Summary Restore a soft-deleted group
// @Tags groups
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 403 {object} map[string]string "Owner or admin access required"
// @Failure 409 {object} map[string]string "Group is not deleted"
// @Security BearerAuth
// @Router /groups/{groupId}/restore [post]
func (h *Handler) Restore(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	group, ok := h.loadGroup(c)
	if !ok {
		return
	}

	if !h.requireManage(c, group, userID) {
		return
	}

	if !group.Deleted {
		c.JSON(http.StatusConflict, gin.H{"error": "Group is not deleted"})
		return
	}

	if err := h.db.Model(&models.Group{}).Where("id = ?", group.ID).Update("deleted", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to restore group"})
		return
	}

	group.Deleted = false
	c.JSON(http.StatusOK, groupToResponse(group))
}

// loadGroup parses the groupId path param and fetches the record.
// Writes the error response itself when the group cannot be loaded.
func (h *Handler) loadGroup(c *gin.Context) (models.Group, bool) {
	groupID, err := strconv.ParseUint(c.Param("groupId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return models.Group{}, false
	}

	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return models.Group{}, false
	}
	return group, true
}

// requireManage enforces the owner-or-admin rule, answering 403 on failure
func (h *Handler) requireManage(c *gin.Context, group models.Group, userID uint) bool {
	allowed, err := authz.CanManageGroup(h.db, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return false
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Owner or admin access required"})
		return false
	}
	return true
}

// toResponses decorates each group with the caller's role and the member
// count, batching both lookups instead of querying per group.
func (h *Handler) toResponses(groups []models.Group, userID uint) ([]GroupResponse, error) {
	out := make([]GroupResponse, len(groups))
	if len(groups) == 0 {
		return out, nil
	}

	ids := make([]uint, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}

	var mine []models.Membership
	if err := h.db.Where("user_id = ? AND group_id IN ?", userID, ids).Find(&mine).Error; err != nil {
		return nil, err
	}
	roles := make(map[uint]models.GroupRole, len(mine))
	for _, m := range mine {
		roles[m.GroupID] = m.Role
	}

	var counts []struct {
		GroupID uint
		Total   int
	}
	err := h.db.Model(&models.Membership{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IN ?", ids).
		Group("group_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	members := make(map[uint]int, len(counts))
	for _, gc := range counts {
		members[gc.GroupID] = gc.Total
	}

	for i, g := range groups {
		resp := groupToResponse(g)
		if role, ok := roles[g.ID]; ok {
			resp.Role = string(role)
		}
		resp.MemberCount = members[g.ID]
		out[i] = resp
	}
	return out, nil
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/search", h.Search)
	rg.GET("/admin", h.ListAdmin)
	rg.GET("/member", h.ListMember)
	rg.GET("/:groupId", h.Get)
	rg.PATCH("/:groupId", h.Update)
	rg.DELETE("/:groupId", h.Delete)
	rg.POST("/:groupId/restore", h.Restore)
}
