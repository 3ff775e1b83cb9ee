package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// PromoteRequest describes a promotion. Empty Permissions select the role's
// default bundle.
type PromoteRequest struct {
	UserID      uuid.UUID
	Role        models.Role
	Permissions []string
	Notes       string
}

// AdminService manages admin records. Every operation is authorized against
// the caller's principal before anything is read or written.
type AdminService struct {
	users       UserStore
	admins      AdminStore
	auditLog    AuditStore
	permissions *auth.PermissionEngine
	audit       auditor
	mail        mailer
	now         func() time.Time
}

// NewAdminService creates an AdminService.
func NewAdminService(deps AuthDeps) *AdminService {
	return &AdminService{
		users:       deps.Users,
		admins:      deps.Admins,
		auditLog:    deps.Audit,
		permissions: deps.Permissions,
		audit:       auditor{store: deps.Audit},
		mail:        mailer{notifier: deps.Notifier, tokens: deps.Tokens, frontendURL: deps.FrontendURL},
		now:         deps.clock(),
	}
}

// Promote creates, or reactivates, the admin record of an active user.
// Only superadmins may grant the superadmin role, and admins may only hand
// out permissions they hold themselves.
func (s *AdminService) Promote(ctx context.Context, caller *auth.Principal, req PromoteRequest, meta RequestMeta) (*models.Admin, error) {
	if err := s.authorize(caller, req.UserID); err != nil {
		return nil, err
	}
	if !req.Role.Valid() {
		return nil, utils.ErrInvalidInput
	}
	if req.Role == models.RoleSuperadmin && !caller.IsSuperuser() {
		return nil, utils.ErrForbidden
	}

	perms := normalizePermissions(req.Permissions)
	if len(perms) == 0 {
		perms = auth.DefaultPermissions(req.Role)
	}
	if err := s.checkGrantable(caller, perms...); err != nil {
		return nil, err
	}

	target, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !target.IsActive {
		return nil, utils.ErrNotFound
	}

	assignedBy := caller.UserID()
	now := s.now().UTC()

	admin, err := s.admins.GetByUserID(ctx, req.UserID)
	switch {
	case err == nil && admin.IsActive:
		return nil, utils.ErrAlreadyAdmin
	case err == nil:
		admin.Role = req.Role
		admin.Permissions = perms
		admin.AssignedBy = &assignedBy
		admin.AssignedAt = now
		admin.Notes = req.Notes
		ok, err := s.admins.Reactivate(ctx, admin)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, utils.ErrAlreadyAdmin
		}
	case errors.Is(err, utils.ErrNotFound):
		admin = &models.Admin{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Role:        req.Role,
			Permissions: perms,
			AssignedBy:  &assignedBy,
			AssignedAt:  now,
			Notes:       req.Notes,
			IsActive:    true,
		}
		if err := s.admins.Create(ctx, admin); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.audit.record(ctx, assignedBy, models.AuditAdminPromoted, models.TargetAdmin, req.UserID.String(), meta,
		map[string]any{"role": admin.Role, "permissions": admin.Permissions})
	s.mail.send(ctx, notify.TemplateWelcomeAdmin, target, map[string]string{"role": string(admin.Role)})

	log.Info().
		Str("user_id", req.UserID.String()).
		Str("role", string(admin.Role)).
		Str("by", assignedBy.String()).
		Msg("Admin promoted")
	return admin, nil
}

// Demote deactivates the admin record of a user. The record is kept.
func (s *AdminService) Demote(ctx context.Context, caller *auth.Principal, userID uuid.UUID, meta RequestMeta) (*models.Admin, error) {
	admin, err := s.loadForChange(ctx, caller, userID)
	if err != nil {
		return nil, err
	}

	ok, err := s.admins.Deactivate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.ErrNotFound
	}
	admin.IsActive = false

	s.audit.record(ctx, caller.UserID(), models.AuditAdminDemoted, models.TargetAdmin, userID.String(), meta,
		map[string]any{"role": admin.Role})
	log.Info().Str("user_id", userID.String()).Str("by", caller.UserID().String()).Msg("Admin demoted")
	return admin, nil
}

// GrantPermission adds permission to an active admin. Granting a permission
// already held is a no-op.
func (s *AdminService) GrantPermission(ctx context.Context, caller *auth.Principal, userID uuid.UUID, permission string, meta RequestMeta) (*models.Admin, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return nil, utils.ErrInvalidInput
	}
	if err := s.authorize(caller, userID); err != nil {
		return nil, err
	}
	if err := s.checkGrantable(caller, permission); err != nil {
		return nil, err
	}

	if _, err := s.loadForChange(ctx, caller, userID); err != nil {
		return nil, err
	}
	admin, changed, err := s.admins.AddPermission(ctx, userID, permission)
	if err != nil || !changed {
		return admin, err
	}

	s.audit.record(ctx, caller.UserID(), models.AuditPermissionGranted, models.TargetAdmin, userID.String(), meta,
		map[string]any{"permission": permission})
	return admin, nil
}

// RevokePermission removes permission from an active admin. Revoking a
// permission not held is a no-op.
func (s *AdminService) RevokePermission(ctx context.Context, caller *auth.Principal, userID uuid.UUID, permission string, meta RequestMeta) (*models.Admin, error) {
	permission = strings.TrimSpace(permission)
	if permission == "" {
		return nil, utils.ErrInvalidInput
	}

	if _, err := s.loadForChange(ctx, caller, userID); err != nil {
		return nil, err
	}
	admin, changed, err := s.admins.RemovePermission(ctx, userID, permission)
	if err != nil || !changed {
		return admin, err
	}

	s.audit.record(ctx, caller.UserID(), models.AuditPermissionRevoked, models.TargetAdmin, userID.String(), meta,
		map[string]any{"permission": permission})
	return admin, nil
}

// GetAdmin returns the admin record of a user. Superadmin records are
// invisible to callers that are not superadmins.
func (s *AdminService) GetAdmin(ctx context.Context, caller *auth.Principal, userID uuid.UUID) (*models.Admin, error) {
	if err := s.authorize(caller, userID); err != nil {
		return nil, err
	}
	admin, err := s.admins.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if admin.Role == models.RoleSuperadmin && !caller.IsSuperuser() {
		return nil, utils.ErrNotFound
	}
	return admin, nil
}

// ListAdmins returns a page of admin records.
func (s *AdminService) ListAdmins(ctx context.Context, caller *auth.Principal, filter models.AdminFilter) ([]*models.Admin, int, error) {
	if err := s.permissions.Authorize(caller, auth.ActionManageAdmins, auth.Resource{Type: models.TargetAdmin}); err != nil {
		return nil, 0, err
	}
	if !caller.IsSuperuser() {
		filter.ExcludeRole = models.RoleSuperadmin
		if filter.Role == models.RoleSuperadmin {
			return []*models.Admin{}, 0, nil
		}
	}
	return s.admins.List(ctx, filter)
}

// ListAuditLog returns a page of audit entries.
func (s *AdminService) ListAuditLog(ctx context.Context, caller *auth.Principal, filter models.AuditFilter) ([]*models.AuditLogEntry, int, error) {
	if err := s.permissions.Authorize(caller, auth.ActionViewReports, auth.Resource{Type: "AuditLog"}); err != nil {
		return nil, 0, err
	}
	return s.auditLog.List(ctx, filter)
}

func (s *AdminService) authorize(caller *auth.Principal, target uuid.UUID) error {
	return s.permissions.Authorize(caller, auth.ActionManageAdmins, auth.Resource{Type: models.TargetAdmin, ID: target.String()})
}

// loadForChange authorizes the caller and returns the active admin record of
// userID. A superadmin record may only be changed by its owner.
func (s *AdminService) loadForChange(ctx context.Context, caller *auth.Principal, userID uuid.UUID) (*models.Admin, error) {
	if err := s.authorize(caller, userID); err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !admin.IsActive {
		return nil, utils.ErrNotFound
	}
	if admin.Role == models.RoleSuperadmin && !caller.Is(userID) {
		return nil, utils.ErrForbidden
	}
	return admin, nil
}

func (s *AdminService) checkGrantable(caller *auth.Principal, perms ...string) error {
	for _, p := range perms {
		if !s.permissions.Holds(caller, p) {
			return utils.ErrForbidden
		}
	}
	return nil
}

// normalizePermissions trims, drops empties, dedupes and sorts.
func normalizePermissions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
