package comments

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/authz"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

// Handler handles task comment requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new comments handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateCommentRequest represents the body for posting a comment
type CreateCommentRequest struct {
	Contents    string   `json:"contents" binding:"required"`
	Attachments []string `json:"attachments"`
}

// UpdateCommentRequest is a partial comment patch. At least one field must be
// present.
type UpdateCommentRequest struct {
	Contents    *string  `json:"contents"`
	Attachments []string `json:"attachments"`
}

// CommentResponse represents a comment in API responses
type CommentResponse struct {
	ID          uint         `json:"id"`
	TaskID      uint         `json:"task_id"`
	AuthorID    uint         `json:"author_id"`
	Contents    string       `json:"contents"`
	Attachments []string     `json:"attachments"`
	CreatedAt   string       `json:"created_at"`
	Author      *models.User `json:"author,omitempty"`
}

func toResponse(cm models.Comment) CommentResponse {
	resp := CommentResponse{
		ID:          cm.ID,
		TaskID:      cm.TaskID,
		AuthorID:    cm.AuthorID,
		Contents:    cm.Contents,
		Attachments: decodeAttachments(cm.Attachments),
		CreatedAt:   cm.CreatedAt.UTC().Format(time.RFC3339),
	}
	if cm.Author.ID != 0 {
		resp.Author = &cm.Author
	}
	return resp
}

func decodeAttachments(raw string) []string {
	out := []string{}
	if raw != "" {
		json.Unmarshal([]byte(raw), &out)
	}
	return out
}

func encodeAttachments(attachments []string) string {
	if len(attachments) == 0 {
		return "[]"
	}
	raw, _ := json.Marshal(attachments)
	return string(raw)
}

// Create posts a comment on a task. Only the task creator or an assignee may
// comment.
// @Summary Comment on a task
// @Tags comments
// @Accept json
// @Produce json
// @Param taskId path int true "Task ID"
// @Param request body CreateCommentRequest true "Comment contents"
// @Success 201 {object} CommentResponse
// @Failure 403 {object} map[string]string "No access to this task"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId}/comments [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, ok := h.accessibleTask(c, userID)
	if !ok {
		return
	}

	comment := models.Comment{
		TaskID:      task.ID,
		AuthorID:    userID,
		Contents:    req.Contents,
		Attachments: encodeAttachments(req.Attachments),
	}
	if err := h.db.Create(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create comment"})
		return
	}

	c.JSON(http.StatusCreated, toResponse(comment))
}

// List returns a task's live comments, newest first, optionally paginated
// with page/per_page
// @Summary List a task's comments
// @Tags comments
// @Produce json
// @Param taskId path int true "Task ID"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {array} CommentResponse
// @Failure 403 {object} map[string]string "No access to this task"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId}/comments [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	task, ok := h.accessibleTask(c, userID)
	if !ok {
		return
	}

	query := h.db.Preload("Author").
		Where("task_id = ? AND is_deleted = ?", task.ID, false).
		Order("created_at DESC")

	if c.Query("page") != "" || c.Query("per_page") != "" {
		page, perPage := pagination(c)
		var total int64
		h.db.Model(&models.Comment{}).Where("task_id = ? AND is_deleted = ?", task.ID, false).Count(&total)

		var items []models.Comment
		if err := query.Offset((page - 1) * perPage).Limit(perPage).Find(&items).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list comments"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"page":        page,
			"per_page":    perPage,
			"total_items": total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
			"items":       toResponses(items),
		})
		return
	}

	var items []models.Comment
	if err := query.Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list comments"})
		return
	}
	c.JSON(http.StatusOK, toResponses(items))
}

// Update patches a comment's contents or attachments. The parent task must
// be live and the caller must still hold task access; beyond that only the
// author may edit, and the patch must carry at least one field.
// @Summary Update a comment
// @Tags comments
// @Accept json
// @Produce json
// @Param taskId path int true "Task ID"
// @Param commentId path int true "Comment ID"
// @Param request body UpdateCommentRequest true "Fields to patch"
// @Success 200 {object} CommentResponse
// @Failure 400 {object} map[string]string "Empty patch"
// @Failure 403 {object} map[string]string "Only the author can update"
// @Failure 404 {object} map[string]string "Comment not found"
// @Security BearerAuth
// @Router /tasks/{taskId}/comments/{commentId} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Contents == nil && req.Attachments == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Nothing to update"})
		return
	}

	if _, ok := h.accessibleTask(c, userID); !ok {
		return
	}
	comment, ok := h.loadComment(c)
	if !ok {
		return
	}

	if !authz.CanEditComment(comment, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the author can update a comment"})
		return
	}

	if req.Contents != nil {
		comment.Contents = *req.Contents
	}
	if req.Attachments != nil {
		comment.Attachments = encodeAttachments(req.Attachments)
	}

	if err := h.db.Save(&comment).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update comment"})
		return
	}

	c.JSON(http.StatusOK, toResponse(comment))
}

// Delete soft-deletes a comment. The parent task must be live and the caller
// must hold task access; the comment author or the task creator may delete.
// @Summary Delete a comment
// @Tags comments
// @Produce json
// @Param taskId path int true "Task ID"
// @Param commentId path int true "Comment ID"
// @Success 200 {object} map[string]bool
// @Failure 403 {object} map[string]string "No permission to delete"
// @Failure 404 {object} map[string]string "Comment not found"
// @Security BearerAuth
// @Router /tasks/{taskId}/comments/{commentId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	task, ok := h.accessibleTask(c, userID)
	if !ok {
		return
	}
	comment, ok := h.loadComment(c)
	if !ok {
		return
	}

	if !authz.CanDeleteComment(comment, task, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if err := h.db.Model(&models.Comment{}).Where("id = ?", comment.ID).Update("is_deleted", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// accessibleTask loads a live task and checks the creator-or-assignee rule
func (h *Handler) accessibleTask(c *gin.Context, userID uint) (models.Task, bool) {
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return models.Task{}, false
	}

	var task models.Task
	if err := h.db.Preload("Assignees").First(&task, taskID).Error; err != nil || task.IsDeleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return models.Task{}, false
	}

	if !authz.TaskAccess(task, task.Assignees, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "No access to this task"})
		return models.Task{}, false
	}
	return task, true
}

// loadComment fetches a live comment belonging to the task in the path
func (h *Handler) loadComment(c *gin.Context) (models.Comment, bool) {
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return models.Comment{}, false
	}
	commentID, ok := parseID(c, "commentId")
	if !ok {
		return models.Comment{}, false
	}

	var comment models.Comment
	err := h.db.Where("id = ? AND task_id = ?", commentID, taskID).First(&comment).Error
	if err != nil || comment.IsDeleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return models.Comment{}, false
	}
	return comment, true
}

func toResponses(items []models.Comment) []CommentResponse {
	out := make([]CommentResponse, len(items))
	for i, cm := range items {
		out[i] = toResponse(cm)
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

// RegisterRoutes registers comment routes
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/tasks/:taskId/comments", h.Create)
	api.GET("/tasks/:taskId/comments", h.List)
	api.PATCH("/tasks/:taskId/comments/:commentId", h.Update)
	api.DELETE("/tasks/:taskId/comments/:commentId", h.Delete)
}
