package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GTDGit/gtd_auth/internal/middleware"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

const maxPageLimit = 100

// AdminHandler handles admin management and audit log endpoints.
type AdminHandler struct {
	adminService *service.AdminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// Promote handles POST /v1/admin/admins
func (h *AdminHandler) Promote(c *gin.Context) {
	var req struct {
		UserID      string   `json:"userId" binding:"required,uuid"`
		Role        string   `json:"role" binding:"required"`
		Permissions []string `json:"permissions"`
		Notes       string   `json:"notes" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	admin, err := h.adminService.Promote(c.Request.Context(), middleware.GetPrincipal(c), service.PromoteRequest{
		UserID:      uuid.MustParse(req.UserID),
		Role:        models.Role(req.Role),
		Permissions: req.Permissions,
		Notes:       req.Notes,
	}, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 201, "Admin promoted", admin)
}

// ListAdmins handles GET /v1/admin/admins
func (h *AdminHandler) ListAdmins(c *gin.Context) {
	page, limit := pagination(c)
	filter := models.AdminFilter{
		Role:            models.Role(c.Query("role")),
		IncludeInactive: c.Query("includeInactive") == "true",
		Offset:          (page - 1) * limit,
		Limit:           limit,
	}

	admins, total, err := h.adminService.ListAdmins(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessWithPagination(c, 200, "Admins retrieved", admins, page, limit, total)
}

// GetAdmin handles GET /v1/admin/admins/:userId
func (h *AdminHandler) GetAdmin(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	admin, err := h.adminService.GetAdmin(c.Request.Context(), middleware.GetPrincipal(c), userID)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Admin retrieved", admin)
}

// Demote handles DELETE /v1/admin/admins/:userId
func (h *AdminHandler) Demote(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	admin, err := h.adminService.Demote(c.Request.Context(), middleware.GetPrincipal(c), userID, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Admin demoted", admin)
}

// GrantPermission handles POST /v1/admin/admins/:userId/permissions
func (h *AdminHandler) GrantPermission(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}
	var req struct {
		Permission string `json:"permission" binding:"required,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, 400, "INVALID_REQUEST", "Invalid request body")
		return
	}

	admin, err := h.adminService.GrantPermission(c.Request.Context(), middleware.GetPrincipal(c), userID, req.Permission, requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Permission granted", admin)
}

// RevokePermission handles DELETE /v1/admin/admins/:userId/permissions/:permission
func (h *AdminHandler) RevokePermission(c *gin.Context) {
	userID, ok := paramUUID(c, "userId")
	if !ok {
		return
	}

	admin, err := h.adminService.RevokePermission(c.Request.Context(), middleware.GetPrincipal(c), userID, c.Param("permission"), requestMeta(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.Success(c, 200, "Permission revoked", admin)
}

// ListAuditLogs handles GET /v1/admin/audit-logs
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	page, limit := pagination(c)
	filter := models.AuditFilter{
		Action: c.Query("action"),
		Offset: (page - 1) * limit,
		Limit:  limit,
	}
	if actor := c.Query("actorId"); actor != "" {
		id, err := uuid.Parse(actor)
		if err != nil {
			utils.Error(c, 400, "INVALID_REQUEST", "Invalid actorId")
			return
		}
		filter.ActorID = &id
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			utils.Error(c, 400, "INVALID_REQUEST", "Invalid since, expected RFC3339")
			return
		}
		filter.Since = &t
	}

	entries, total, err := h.adminService.ListAuditLog(c.Request.Context(), middleware.GetPrincipal(c), filter)
	if err != nil {
		utils.HandleError(c, err)
		return
	}

	utils.SuccessWithPagination(c, 200, "Audit logs retrieved", entries, page, limit, total)
}

func pagination(c *gin.Context) (page, limit int) {
	page, limit = 1, 20
	if v := c.Query("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := c.Query("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 {
			limit = l
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
