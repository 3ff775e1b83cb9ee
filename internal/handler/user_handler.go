package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GTDGit/gtd_auth/internal/middleware"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// UserHandler handles profile endpoints.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	user, err := h.userService.GetProfile(c.Request.Context(), p, p.UserID())
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Profile retrieved", gin.H{
		"user":  user,
		"admin": p.ActiveAdmin(),
	})
}

// UpdateMe handles PUT /v1/users/me
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Username *string `json:"username" binding:"omitempty,max=50"`
		Email    *string `json:"email" binding:"omitempty,email,max=255"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	p := middleware.GetPrincipal(c)
	user, err := h.userService.UpdateProfile(c.Request.Context(), p, p.UserID(), service.UpdateProfileRequest{
		Username: req.Username,
		Email:    req.Email,
	}, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Profile updated", user)
}

// ChangePassword handles PUT /v1/users/me/password. Other sessions are
// signed out; the response carries a fresh token pair.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	pair, err := h.userService.ChangePassword(c.Request.Context(), middleware.GetPrincipal(c),
		req.CurrentPassword, req.NewPassword, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Password changed", pair)
}

// ListUsers handles GET /v1/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, limit := pagination(c)
	filter := models.UserFilter{
		Search: c.Query("search"),
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
	var ok bool
	if filter.IsActive, ok = queryBool(c, "isActive"); !ok {
		return
	}
	if filter.EmailVerified, ok = queryBool(c, "emailVerified"); !ok {
		return
	}

	users, total, err := h.userService.ListUsers(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessWithPagination(c, 200, "Users retrieved", users, page, limit, total)
}

// GetActivity handles GET /v1/users/:id/activity?days=30
func (h *UserHandler) GetActivity(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}
	days := 0
	if v := c.Query("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d <= 0 {
			utils.Error(c, 400, "INVALID_REQUEST", "days must be a positive integer")
			return
		}
		days = d
	}

	summary, err := h.userService.ActivitySummary(c.Request.Context(), middleware.GetPrincipal(c), id, days)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Activity summary retrieved", summary)
}

// GetUser handles GET /v1/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "User retrieved", user)
}

// DeactivateUser handles DELETE /v1/users/:id
func (h *UserHandler) DeactivateUser(c *gin.Context) {
	id, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.userService.Deactivate(c.Request.Context(), middleware.GetPrincipal(c), id, requestMeta(c)); err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "User deactivated", nil)
}

// paramUUID parses a path parameter, writing a 400 when it is not a UUID.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		utils.Error(c, 400, "INVALID_ID", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// queryBool parses an optional boolean query parameter, writing a 400 when it
// is malformed.
func queryBool(c *gin.Context, name string) (*bool, bool) {
	v := c.Query(name)
	if v == "" {
		return nil, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid "+name)
		return nil, false
	}
	return &b, true
}
