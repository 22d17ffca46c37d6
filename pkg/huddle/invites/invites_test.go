package invites

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

func sendInvite(router *gin.Engine, from models.User, userID uint) *httptest.ResponseRecorder {
	body, _ := json.Marshal(CreateInviteRequest{UserID: userID})
	req, _ := http.NewRequest("POST", "/groups/1/invites", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(from))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestSendInvite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	createTestGroup(t, db, owner)

	resp := sendInvite(router, owner, invitee.ID)

	if resp.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var response InviteResponse
	json.Unmarshal(resp.Body.Bytes(), &response)

	if response.Status != string(models.RequestStatusPending) {
		t.Errorf("Expected status 'pending', got %s", response.Status)
	}
	if response.InviteeID != invitee.ID {
		t.Errorf("Expected invitee %d, got %d", invitee.ID, response.InviteeID)
	}
}

func TestOnlyOwnerCanInvite(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	admin := createTestUser(t, db, "admin@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.Membership{UserID: admin.ID, GroupID: group.ID, Role: models.GroupRoleAdmin})

	// Even an admin member may not invite
	resp := sendInvite(router, admin, invitee.ID)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestInviteUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	createTestGroup(t, db, owner)

	resp := sendInvite(router, owner, 9999)

	if resp.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.Code)
	}
}

func TestInviteExistingMemberConflicts(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	member := createTestUser(t, db, "member@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.Membership{UserID: member.ID, GroupID: group.ID, Role: models.GroupRoleMember})

	resp := sendInvite(router, owner, member.ID)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestDuplicatePendingInviteConflicts(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.InviteRequest{InviterID: owner.ID, InviteeID: invitee.ID, GroupID: group.ID, Status: models.RequestStatusPending})

	resp := sendInvite(router, owner, invitee.ID)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", resp.Code)
	}
}

func TestAcceptInviteCreatesMembership(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.InviteRequest{InviterID: owner.ID, InviteeID: invitee.ID, GroupID: group.ID, Status: models.RequestStatusPending})

	req, _ := http.NewRequest("POST", "/invites/1/accept", nil)
	req.Header.Set("Authorization", getAuthHeader(invitee))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var invite models.InviteRequest
	db.First(&invite, 1)
	if invite.Status != models.RequestStatusAccepted {
		t.Errorf("Expected status 'accepted', got %s", invite.Status)
	}

	var count int64
	db.Model(&models.Membership{}).Where("user_id = ? AND group_id = ?", invitee.ID, group.ID).Count(&count)
	if count != 1 {
		t.Errorf("Expected membership to be created")
	}
}

func TestOnlyInviteeCanResolve(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.InviteRequest{InviterID: owner.ID, InviteeID: invitee.ID, GroupID: group.ID, Status: models.RequestStatusPending})

	// The inviter cannot accept on the invitee's behalf
	req, _ := http.NewRequest("POST", "/invites/1/accept", nil)
	req.Header.Set("Authorization", getAuthHeader(owner))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", resp.Code)
	}
}

func TestResolveTerminalInviteConflicts(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.InviteRequest{InviterID: owner.ID, InviteeID: invitee.ID, GroupID: group.ID, Status: models.RequestStatusAccepted})

	req, _ := http.NewRequest("POST", "/invites/1/reject", nil)
	req.Header.Set("Authorization", getAuthHeader(invitee))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Errorf("Expected status 409 for resolved invite, got %d", resp.Code)
	}
}

func TestListMyInvites(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	owner := createTestUser(t, db, "owner@example.com")
	invitee := createTestUser(t, db, "invitee@example.com")
	group := createTestGroup(t, db, owner)
	db.Create(&models.InviteRequest{InviterID: owner.ID, InviteeID: invitee.ID, GroupID: group.ID, Status: models.RequestStatusPending})

	req, _ := http.NewRequest("GET", "/invites", nil)
	req.Header.Set("Authorization", getAuthHeader(invitee))
	resp := httptest.NewRecorder()

	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var invites []InviteResponse
	json.Unmarshal(resp.Body.Bytes(), &invites)

	if len(invites) != 1 {
		t.Fatalf("Expected 1 invite, got %d", len(invites))
	}
	if invites[0].Group == nil || invites[0].Group.ID != group.ID {
		t.Errorf("Expected expanded group on invite listing")
	}
}
