package users

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huddlehq/huddle/pkg/huddle/auth"
	"github.com/huddlehq/huddle/pkg/huddle/models"
	"gorm.io/gorm"
)

// Handler handles user directory and profile requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new users handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UpdateProfileRequest is a partial profile patch. Password changes require
// the matching confirmation.
type UpdateProfileRequest struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	AvatarURL       *string `json:"avatar_url"`
	Password        *string `json:"password"`
	PasswordConfirm *string `json:"password_confirm"`
}

// List returns the user directory, optionally filtered by a case-insensitive
// name or email substring
// @Summary List users
// @Tags users
// @Produce json
// @Param q query string false "Name or email substring"
// @Success 200 {array} models.User
// @Security BearerAuth
// @Router /users [get]
func (h *Handler) List(c *gin.Context) {
	query := h.db.Order("name ASC")
	if q := c.Query("q"); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get returns a single user's public profile
// @Summary Get a user
// @Tags users
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {object} models.User
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /users/{userId} [get]
func (h *Handler) Get(c *gin.Context) {
	var user models.User
	if err := h.db.First(&user, c.Param("userId")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateMe patches the caller's own profile. Email changes collide with 409,
// password changes need a matching confirmation.
// @Summary Update my profile
// @Tags users
// @Accept json
// @Produce json
// @Param request body UpdateProfileRequest true "Fields to patch"
// @Success 200 {object} models.User
// @Failure 400 {object} map[string]string "Password confirmation mismatch"
// @Failure 409 {object} map[string]string "Email already in use"
// @Security BearerAuth
// @Router /users/me [patch]
func (h *Handler) UpdateMe(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = *req.AvatarURL
	}
	if req.Email != nil && *req.Email != user.Email {
		var count int64
		h.db.Model(&models.User{}).Where("email = ?", *req.Email).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
			return
		}
		user.Email = *req.Email
	}
	if req.Password != nil {
		if req.PasswordConfirm == nil || *req.Password != *req.PasswordConfirm {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password confirmation does not match"})
			return
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
			return
		}
		user.PasswordHash = hash
	}

	if err := h.db.Save(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// RegisterRoutes registers user routes
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/users", h.List)
	api.PATCH("/users/me", h.UpdateMe)
	api.GET("/users/:userId", h.Get)
}
