package tasks

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

// Handler handles task-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new tasks handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateTaskRequest represents the request to create a task
type CreateTaskRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Assignee    []uint     `json:"assignee"`
	Deadline    *time.Time `json:"deadline"`
}

// UpdateTaskRequest represents a partial task patch. Assignee replacement
// only happens when the new list is non-empty.
type UpdateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
	Assignee    []uint     `json:"assignee"`
}

// UpdateStatusRequest carries the new task status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// TaskResponse represents a task in API responses
type TaskResponse struct {
	ID           uint          `json:"id"`
	GroupID      uint          `json:"group_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	Status       string        `json:"status"`
	CreatedBy    uint          `json:"created_by"`
	Deadline     *time.Time    `json:"deadline,omitempty"`
	IsDeleted    bool          `json:"is_deleted"`
	CreatedAt    string        `json:"created_at"`
	Assignee     []uint        `json:"assignee"`
	AssigneeInfo []models.User `json:"assignee_info,omitempty"`
}

func taskToResponse(t models.Task) TaskResponse {
	assignee := make([]uint, len(t.Assignees))
	for i, a := range t.Assignees {
		assignee[i] = a.UserID
	}
	return TaskResponse{
		ID:          t.ID,
		GroupID:     t.GroupID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedByID,
		Deadline:    t.Deadline,
		IsDeleted:   t.IsDeleted,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339),
		Assignee:    assignee,
	}
}

// Create creates a task in a group. Anyone who can see the group may create;
// status always initializes to pending.
// @Summary Create a task in a group
// @Tags tasks
// @Accept json
// @Produce json
// @Param groupId path int true "Group ID"
// @Param request body CreateTaskRequest true "Task details"
// @Success 201 {object} TaskResponse
// @Failure 400 {object} map[string]string "Validation error or unknown assignee"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{groupId}/tasks [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, ok := h.visibleGroup(c, groupID, userID)
	if !ok {
		return
	}

	var task models.Task
	err := h.db.Transaction(func(tx *gorm.DB) error {
		task = models.Task{
			GroupID:     group.ID,
			Title:       req.Title,
			Description: req.Description,
			Status:      models.TaskStatusPending,
			CreatedByID: userID,
			Deadline:    req.Deadline,
		}
		if err := tx.Create(&task).Error; err != nil {
			return err
		}
		return createAssignees(tx, task.ID, req.Assignee)
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to create task"})
		return
	}

	resp := taskToResponse(task)
	resp.Assignee = dedup(req.Assignee)
	c.JSON(http.StatusCreated, resp)
}

// ListByGroup lists a group's live tasks, newest first, with optional status
// and assignee filters and optional page/per_page pagination
// @Summary List tasks in a group
// @Tags tasks
// @Produce json
// @Param groupId path int true "Group ID"
// @Param status query string false "Filter by status"
// @Param assignee query int false "Filter by assignee user ID"
// @Param page query int false "Page number"
// @Param per_page query int false "Page size"
// @Success 200 {array} TaskResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{groupId}/tasks [get]
func (h *Handler) ListByGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}
	if _, ok := h.visibleGroup(c, groupID, userID); !ok {
		return
	}

	query := h.db.Preload("Assignees").
		Where("group_id = ? AND is_deleted = ?", groupID, false).
		Order("created_at DESC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if assignee := c.Query("assignee"); assignee != "" {
		query = query.Where("id IN (?)",
			h.db.Model(&models.TaskAssignee{}).Select("task_id").Where("user_id = ?", assignee))
	}

	if c.Query("page") != "" || c.Query("per_page") != "" {
		page, perPage := pagination(c)

		var total int64
		countQuery := h.db.Model(&models.Task{}).Where("group_id = ? AND is_deleted = ?", groupID, false)
		if status := c.Query("status"); status != "" {
			countQuery = countQuery.Where("status = ?", status)
		}
		if assignee := c.Query("assignee"); assignee != "" {
			countQuery = countQuery.Where("id IN (?)",
				h.db.Model(&models.TaskAssignee{}).Select("task_id").Where("user_id = ?", assignee))
		}
		countQuery.Count(&total)

		var tasks []models.Task
		if err := query.Offset((page - 1) * perPage).Limit(perPage).Find(&tasks).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"page":        page,
			"per_page":    perPage,
			"total_items": total,
			"total_pages": (total + int64(perPage) - 1) / int64(perPage),
			"items":       toResponses(tasks),
		})
		return
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, toResponses(tasks))
}

// Count returns the number of live tasks in a group, optionally per status
// @Summary Count tasks in a group
// @Tags tasks
// @Produce json
// @Param groupId path int true "Group ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} map[string]int64
// @Security BearerAuth
// @Router /groups/{groupId}/tasks/count [get]
func (h *Handler) Count(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}
	if _, ok := h.visibleGroup(c, groupID, userID); !ok {
		return
	}

	query := h.db.Model(&models.Task{}).Where("group_id = ? AND is_deleted = ?", groupID, false)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// Summary returns per-status counts of a group's live tasks
// @Summary Per-status task counts for a group
// @Tags tasks
// @Produce json
// @Param groupId path int true "Group ID"
// @Success 200 {object} map[string]int64
// @Security BearerAuth
// @Router /groups/{groupId}/tasks/summary [get]
func (h *Handler) Summary(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	groupID, ok := parseID(c, "groupId")
	if !ok {
		return
	}
	if _, ok := h.visibleGroup(c, groupID, userID); !ok {
		return
	}

	summary := gin.H{}
	for _, status := range []models.TaskStatus{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted} {
		var count int64
		err := h.db.Model(&models.Task{}).
			Where("group_id = ? AND is_deleted = ? AND status = ?", groupID, false, status).
			Count(&count).Error
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count tasks"})
			return
		}
		summary[string(status)] = count
	}
	c.JSON(http.StatusOK, summary)
}

// Filter returns the caller's tasks (created or assigned) filtered by a
// single calendar day of creation or deadline, or by exact status
// @Summary Filter my tasks by created date, deadline, or status
// @Tags tasks
// @Produce json
// @Param filterBy query string true "created, deadline, or status"
// @Param date query string false "Day to match (YYYY-MM-DD, default today)"
// @Param status query string false "Status (required when filterBy=status)"
// @Success 200 {array} TaskResponse
// @Failure 400 {object} map[string]string "Invalid filterBy or missing status"
// @Security BearerAuth
// @Router /tasks/filter [get]
func (h *Handler) Filter(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	filterBy := c.Query("filterBy")
	status := c.Query("status")
	if filterBy != "created" && filterBy != "deadline" && filterBy != "status" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filterBy value"})
		return
	}
	if filterBy == "status" && status == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Status parameter is required"})
		return
	}

	target := time.Now()
	if dateStr := c.Query("date"); dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date value"})
			return
		}
		target = parsed
	}
	start := time.Date(target.Year(), target.Month(), target.Day(), 0, 0, 0, 0, target.Location())
	end := start.Add(24*time.Hour - time.Millisecond)

	query := h.db.Preload("Assignees").
		Where("is_deleted = ?", false).
		Where("created_by_id = ? OR id IN (?)", userID,
			h.db.Model(&models.TaskAssignee{}).Select("task_id").Where("user_id = ?", userID))

	switch filterBy {
	case "created":
		query = query.Where("created_at BETWEEN ? AND ?", start, end).Order("created_at DESC")
	case "deadline":
		query = query.Where("deadline BETWEEN ? AND ?", start, end).Order("deadline DESC")
	case "status":
		query = query.Where("status = ?", status).Order("created_at DESC")
	}

	var tasks []models.Task
	if err := query.Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to filter tasks"})
		return
	}
	c.JSON(http.StatusOK, toResponses(tasks))
}

// Get returns a task with expanded assignee records. Soft-deleted tasks are
// still returned here, with is_deleted set, so their history stays auditable.
// @Summary Get task details
// @Tags tasks
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId} [get]
func (h *Handler) Get(c *gin.Context) {
	task, ok := h.loadTask(c, true)
	if !ok {
		return
	}

	resp := taskToResponse(task)
	for _, a := range task.Assignees {
		if a.User.ID != 0 {
			resp.AssigneeInfo = append(resp.AssigneeInfo, a.User)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Assignees returns the user records assigned to a task
// @Summary Get a task's assignees
// @Tags tasks
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {array} models.User
// @Failure 404 {object} map[string]string "Task has no assignees"
// @Security BearerAuth
// @Router /tasks/{taskId}/assignees [get]
func (h *Handler) Assignees(c *gin.Context) {
	task, ok := h.loadTask(c, false)
	if !ok {
		return
	}

	if len(task.Assignees) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No assignees found"})
		return
	}

	users := make([]models.User, 0, len(task.Assignees))
	for _, a := range task.Assignees {
		if a.User.ID != 0 {
			users = append(users, a.User)
		}
	}
	c.JSON(http.StatusOK, users)
}

// UpdateStatus changes a task's status. Only assignees may do this — the
// creator gets 403 too unless they are also assigned.
// @Summary Update task status
// @Tags tasks
// @Accept json
// @Produce json
// @Param taskId path int true "Task ID"
// @Param request body UpdateStatusRequest true "New status"
// @Success 200 {object} TaskResponse
// @Failure 400 {object} map[string]string "Invalid status value"
// @Failure 403 {object} map[string]string "Caller is not an assignee"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId}/status [patch]
func (h *Handler) UpdateStatus(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || !models.ValidTaskStatus(models.TaskStatus(req.Status)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status value"})
		return
	}

	task, ok := h.loadTask(c, false)
	if !ok {
		return
	}

	if !authz.IsAssignee(task.Assignees, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if err := h.db.Model(&models.Task{}).Where("id = ?", task.ID).Update("status", req.Status).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	task.Status = models.TaskStatus(req.Status)
	c.JSON(http.StatusOK, taskToResponse(task))
}

// Update applies a partial patch to a task. Only the creator may patch, and
// the assignee list is replaced only when the request carries a non-empty one.
// @Summary Update a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param taskId path int true "Task ID"
// @Param request body UpdateTaskRequest true "Fields to patch"
// @Success 200 {object} TaskResponse
// @Failure 403 {object} map[string]string "Only the creator can update"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId} [patch]
func (h *Handler) Update(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, ok := h.loadTask(c, false)
	if !ok {
		return
	}

	if task.CreatedByID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Deadline != nil {
		task.Deadline = req.Deadline
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&task).Error; err != nil {
			return err
		}
		if len(req.Assignee) == 0 {
			return nil
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskAssignee{}).Error; err != nil {
			return err
		}
		return createAssignees(tx, task.ID, req.Assignee)
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to update task"})
		return
	}

	// Reload assignees for the response
	h.db.Preload("Assignees").First(&task, task.ID)
	c.JSON(http.StatusOK, taskToResponse(task))
}

// Delete soft-deletes a task. Permitted for the task creator, the group
// owner, or a group admin.
// @Summary Soft-delete a task
// @Tags tasks
// @Produce json
// @Param taskId path int true "Task ID"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string "Parent group not found"
// @Failure 403 {object} map[string]string "No permission to delete"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /tasks/{taskId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	task, ok := h.loadTask(c, false)
	if !ok {
		return
	}

	var group models.Group
	if err := h.db.First(&group, task.GroupID).Error; err != nil || group.Deleted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Parent group not found"})
		return
	}

	allowed, err := authz.CanDeleteTask(h.db, task, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	if err := h.db.Model(&models.Task{}).Where("id = ?", task.ID).Update("is_deleted", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadTask fetches the task with assignees and users expanded. Unless
// includeDeleted is set, soft-deleted tasks answer 404.
func (h *Handler) loadTask(c *gin.Context, includeDeleted bool) (models.Task, bool) {
	taskID, ok := parseID(c, "taskId")
	if !ok {
		return models.Task{}, false
	}

	var task models.Task
	if err := h.db.Preload("Assignees").Preload("Assignees.User").First(&task, taskID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return models.Task{}, false
	}
	if task.IsDeleted && !includeDeleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return models.Task{}, false
	}
	return task, true
}

// visibleGroup answers 404 both for missing/deleted groups and for private
// groups the caller cannot see.
func (h *Handler) visibleGroup(c *gin.Context, groupID, userID uint) (models.Group, bool) {
	var group models.Group
	if err := h.db.First(&group, groupID).Error; err != nil || group.Deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return models.Group{}, false
	}
	visible, err := authz.CanViewGroup(h.db, group, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		return models.Group{}, false
	}
	if !visible {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return models.Group{}, false
	}
	return group, true
}

// createAssignees validates each user id and inserts the join rows
func createAssignees(tx *gorm.DB, taskID uint, userIDs []uint) error {
	for _, uid := range dedup(userIDs) {
		var u models.User
		if err := tx.First(&u, uid).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.TaskAssignee{TaskID: taskID, UserID: uid}).Error; err != nil {
			return err
		}
	}
	return nil
}

func dedup(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func toResponses(tasks []models.Task) []TaskResponse {
	out := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		out[i] = taskToResponse(t)
	}
	return out
}

func pagination(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if perPage < 1 {
		perPage = 10
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

// RegisterRoutes registers task routes
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/groups/:groupId/tasks", h.Create)
	api.GET("/groups/:groupId/tasks", h.ListByGroup)
	api.GET("/groups/:groupId/tasks/count", h.Count)
	api.GET("/groups/:groupId/tasks/summary", h.Summary)
	api.GET("/tasks/filter", h.Filter)
	api.GET("/tasks/:taskId", h.Get)
	api.GET("/tasks/:taskId/assignees", h.Assignees)
	api.PATCH("/tasks/:taskId/status", h.UpdateStatus)
	api.PATCH("/tasks/:taskId", h.Update)
	api.DELETE("/tasks/:taskId", h.Delete)
}
