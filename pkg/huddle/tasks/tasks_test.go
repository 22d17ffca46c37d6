package tasks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	models.AutoMigrate(db)
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	hash, _ := auth.HashPassword("password123")
	user := models.User{Email: email, PasswordHash: hash, Name: "Test User"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db)

	api := r.Group("")
	api.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(api)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email)
	return "Bearer " + token
}

func createTestGroup(t *testing.T, db *gorm.DB, owner models.User) models.Group {
	group := models.Group{Name: "Test Group", OwnerID: owner.ID, IsPublic: true}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("Failed to create test group: %v", err)
	}
	db.Create(&models.Membership{UserID: owner.ID, GroupID: group.ID, Role: models.GroupRoleAdmin})
	return group
}

func createTestTask(t *testing.T, db *gorm.DB, group models.Group, creator models.User, assignees ...models.User) models.Task {
	task := models.Task{
		GroupID:     group.ID,
		Title:       "Test Task",
		Status:      models.TaskStatusPending,
		CreatedByID: creator.ID,
	}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("Failed to create test task: %v", err)
	}
	for _, a := range assignees {
		db.Create(&models.TaskAssignee{TaskID: task.ID, UserID: a.ID})
	}
	return task
}

func TestCreateTask(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	assignee := createTestUser(t, db, "assignee@example.com")
	createTestGroup(t, db, owner)

	body, _ := json.Marshal(CreateTaskRequest{
		Title:    "Ship it",
		Assignee: []uint{assignee.ID},
	})
	req, _ := http.NewRequest("POST", "/groups/1/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Status != string(models.TaskStatusPending) {
		t.Errorf("Expected status 'pending', got %s", response.Status)
	}
	if len(response.Assignee) != 1 || response.Assignee[0] != assignee.ID {
		t.Errorf("Expected assignee %d, got %v", assignee.ID, response.Assignee)
	}
}

func TestCreateTaskUnknownAssignee(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	createTestGroup(t, db, owner)

	body, _ := json.Marshal(CreateTaskRequest{
		Title:    "Ship it",
		Assignee: []uint{9999},
	})
	req, _ := http.NewRequest("POST", "/groups/1/tasks", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}

	var count int64
	db.Model(&models.Task{}).Count(&count)
	if count != 0 {
		t.Errorf("Expected no task after aborted create, got %d", count)
	}
}

func TestListTasksExcludesDeleted(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)

	createTestTask(t, db, group, owner)
	deleted := createTestTask(t, db, group, owner)
	db.Model(&models.Task{}).Where("id = ?", deleted.ID).Update("is_deleted", true)

	req, _ := http.NewRequest("GET", "/groups/1/tasks", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var tasks []TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &tasks)

	if len(tasks) != 1 {
		t.Errorf("Expected 1 live task, got %d", len(tasks))
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)

	createTestTask(t, db, group, owner)
	done := createTestTask(t, db, group, owner)
	db.Model(&models.Task{}).Where("id = ?", done.ID).Update("status", models.TaskStatusCompleted)

	req, _ := http.NewRequest("GET", "/groups/1/tasks?status=completed", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	var tasks []TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &tasks)

	if len(tasks) != 1 {
		t.Fatalf("Expected 1 completed task, got %d", len(tasks))
	}
	if tasks[0].Status != "completed" {
		t.Errorf("Expected status 'completed', got %s", tasks[0].Status)
	}
}

func TestTaskSummary(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)

	createTestTask(t, db, group, owner)
	createTestTask(t, db, group, owner)
	done := createTestTask(t, db, group, owner)
	db.Model(&models.Task{}).Where("id = ?", done.ID).Update("status", models.TaskStatusCompleted)

	req, _ := http.NewRequest("GET", "/groups/1/tasks/summary", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var summary map[string]int64
	json.Unmarshal(resp.Body.Bytes(), &summary)

	if summary["pending"] != 2 {
		t.Errorf("Expected 2 pending, got %d", summary["pending"])
	}
	if summary["completed"] != 1 {
		t.Errorf("Expected 1 completed, got %d", summary["completed"])
	}
}

func TestUpdateStatusAssigneeOnly(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	assignee := createTestUser(t, db, "assignee@example.com")
	group := createTestGroup(t, db, owner)
	task := createTestTask(t, db, group, owner, assignee)

	body := []byte(`{"status":"in_progress"}`)

	// The creator is not an assignee here, so even they get 403
	req, _ := http.NewRequest("PATCH", "/tasks/1/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-assignee, got %d", resp.Code)
	}

	req, _ = http.NewRequest("PATCH", "/tasks/1/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(assignee))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated models.Task
	db.First(&updated, task.ID)
	if updated.Status != models.TaskStatusInProgress {
		t.Errorf("Expected status 'in_progress', got %s", updated.Status)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)
	createTestTask(t, db, group, owner, owner)

	body := []byte(`{"status":"done"}`)
	req, _ := http.NewRequest("PATCH", "/tasks/1/status", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", resp.Code)
	}
}

func TestUpdateTaskCreatorOnly(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	assignee := createTestUser(t, db, "assignee@example.com")
	group := createTestGroup(t, db, owner)
	createTestTask(t, db, group, owner, assignee)

	body := []byte(`{"title":"Renamed"}`)

	// An assignee who is not the creator may not patch the task itself
	req, _ := http.NewRequest("PATCH", "/tasks/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(assignee))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	req, _ = http.NewRequest("PATCH", "/tasks/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated models.Task
	db.First(&updated, 1)
	if updated.Title != "Renamed" {
		t.Errorf("Expected title 'Renamed', got %s", updated.Title)
	}
}

func TestUpdateTaskKeepsAssigneesOnEmptyList(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	assignee := createTestUser(t, db, "assignee@example.com")
	group := createTestGroup(t, db, owner)
	task := createTestTask(t, db, group, owner, assignee)

	body := []byte(`{"title":"Renamed"}`)
	req, _ := http.NewRequest("PATCH", "/tasks/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var count int64
	db.Model(&models.TaskAssignee{}).Where("task_id = ?", task.ID).Count(&count)
	if count != 1 {
		t.Errorf("Expected assignees untouched when patch omits them, got %d", count)
	}
}

func TestUpdateTaskReplacesAssignees(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	oldA := createTestUser(t, db, "old@example.com")
	newA := createTestUser(t, db, "new@example.com")
	group := createTestGroup(t, db, owner)
	task := createTestTask(t, db, group, owner, oldA)

	body, _ := json.Marshal(UpdateTaskRequest{Assignee: []uint{newA.ID}})
	req, _ := http.NewRequest("PATCH", "/tasks/1", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var assignees []models.TaskAssignee
	db.Where("task_id = ?", task.ID).Find(&assignees)
	if len(assignees) != 1 || assignees[0].UserID != newA.ID {
		t.Errorf("Expected assignees replaced with %d, got %v", newA.ID, assignees)
	}
}

func TestDeleteTaskPermissions(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	creator := createTestUser(t, db, "creator@example.com")
	stranger := createTestUser(t, db, "stranger@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.Membership{UserID: creator.ID, GroupID: group.ID, Role: models.GroupRoleMember})
	createTestTask(t, db, group, creator)

	// A user with no stake in the task gets 403
	req, _ := http.NewRequest("DELETE", "/tasks/1", nil)
	req.Header.Set("Authorization", getAuthHeader(stranger))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}

	// The group owner may delete tasks they did not create
	req, _ = http.NewRequest("DELETE", "/tasks/1", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var task models.Task
	db.First(&task, 1)
	if !task.IsDeleted {
		t.Errorf("Expected task to be soft-deleted")
	}
}

func TestGetTaskIncludesDeleted(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)
	task := createTestTask(t, db, group, owner)
	db.Model(&models.Task{}).Where("id = ?", task.ID).Update("is_deleted", true)

	// Detail view still serves soft-deleted tasks, flagged as such
	req, _ := http.NewRequest("GET", "/tasks/1", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var response TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &response)
	if !response.IsDeleted {
		t.Errorf("Expected is_deleted flag on the response")
	}
}

func TestAssigneesEndpoint(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	assignee := createTestUser(t, db, "assignee@example.com")
	group := createTestGroup(t, db, owner)
	createTestTask(t, db, group, owner, assignee)
	createTestTask(t, db, group, owner) // no assignees

	req, _ := http.NewRequest("GET", "/tasks/1/assignees", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var users []models.User
	json.Unmarshal(resp.Body.Bytes(), &users)
	if len(users) != 1 || users[0].ID != assignee.ID {
		t.Errorf("Expected 1 assignee with id %d, got %v", assignee.ID, users)
	}

	// A task without assignees answers 404
	req, _ = http.NewRequest("GET", "/tasks/2/assignees", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for task without assignees, got %d", resp.Code)
	}
}

func TestFilterByStatus(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	other := createTestUser(t, db, "other@example.com")
	group := createTestGroup(t, db, owner)

	createTestTask(t, db, group, owner)
	createTestTask(t, db, group, other) // not the caller's task

	req, _ := http.NewRequest("GET", "/tasks/filter?filterBy=status&status=pending", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var tasks []TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &tasks)
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task (created or assigned to caller), got %d", len(tasks))
	}
}

func TestFilterByCreatedToday(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	group := createTestGroup(t, db, owner)
	createTestTask(t, db, group, owner)

	req, _ := http.NewRequest("GET", "/tasks/filter?filterBy=created", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var tasks []TaskResponse
	json.Unmarshal(resp.Body.Bytes(), &tasks)
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task created today, got %d", len(tasks))
	}
}

func TestFilterValidation(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")

	req, _ := http.NewRequest("GET", "/tasks/filter?filterBy=bogus", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for bad filterBy, got %d", resp.Code)
	}

	// filterBy=status without a status value
	req, _ = http.NewRequest("GET", "/tasks/filter?filterBy=status", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for missing status, got %d", resp.Code)
	}
}
