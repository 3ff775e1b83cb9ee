package auth

import (
	"strings"
	"sync"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// Action is a permissioned operation.
type Action string

const (
	ActionManageAdmins   Action = "manage_admins"
	ActionManageUsers    Action = "manage_users"
	ActionViewReports    Action = "view_reports"
	ActionEditSettings   Action = "edit_settings"
	ActionSystemSettings Action = "system_settings"
)

// Permission strings stored on Admin records.
const (
	PermManageAdmins   = "manage_admins"
	PermManageUsers    = "manage_users"
	PermViewReports    = "view_reports"
	PermEditSettings   = "edit_settings"
	PermSystemSettings = "system_settings"
)

// RequiredPermission maps an action to the permission string it needs.
func RequiredPermission(a Action) (string, bool) {
	switch a {
	case ActionManageAdmins:
		return PermManageAdmins, true
	case ActionManageUsers:
		return PermManageUsers, true
	case ActionViewReports:
		return PermViewReports, true
	case ActionEditSettings:
		return PermEditSettings, true
	case ActionSystemSettings:
		return PermSystemSettings, true
	}
	return "", false
}

// DefaultPermissions returns a fresh copy of the bundle granted to role when
// no explicit permissions are requested.
func DefaultPermissions(role models.Role) []string {
	switch role {
	case models.RoleSuperadmin:
		return []string{PermEditSettings, PermManageAdmins, PermManageUsers, PermSystemSettings, PermViewReports}
	case models.RoleAdmin:
		return []string{PermEditSettings, PermManageUsers, PermViewReports}
	}
	return nil
}

// Resource identifies the object an action targets.
type Resource struct {
	Type string
	ID   string
}

// PermissionEngine decides whether a principal may perform an action.
// Evaluation order: inactive or missing principal is refused, an active
// superadmin is allowed, then the admin's permissions are matched exactly
// or as glob patterns against the required permission.
type PermissionEngine struct {
	mu       sync.RWMutex
	patterns map[string]glob.Glob
}

// NewPermissionEngine creates a PermissionEngine.
func NewPermissionEngine() *PermissionEngine {
	return &PermissionEngine{patterns: make(map[string]glob.Glob)}
}

// Authorize returns nil or utils.ErrForbidden. A superadmin is allowed every
// action, including ones with no mapped permission; anyone else is refused
// an unknown action.
func (e *PermissionEngine) Authorize(p *Principal, action Action, resource Resource) error {
	if p == nil || p.User == nil || !p.User.IsActive {
		return utils.ErrForbidden
	}
	if p.IsSuperuser() {
		return nil
	}

	required, ok := RequiredPermission(action)
	if !ok {
		log.Warn().Str("action", string(action)).Msg("Authorization requested for unknown action")
		return utils.ErrForbidden
	}

	admin := p.ActiveAdmin()
	if admin == nil {
		return utils.ErrForbidden
	}
	for _, granted := range admin.Permissions {
		if granted == required || e.matches(granted, required) {
			return nil
		}
	}

	log.Debug().
		Str("user_id", p.User.ID.String()).
		Str("action", string(action)).
		Str("resource_type", resource.Type).
		Str("resource_id", resource.ID).
		Msg("Authorization denied")
	return utils.ErrForbidden
}

// Holds reports whether the principal's own grants cover permission. Admins
// use it to avoid handing out permissions they do not have themselves.
func (e *PermissionEngine) Holds(p *Principal, permission string) bool {
	if p.IsSuperuser() {
		return true
	}
	admin := p.ActiveAdmin()
	if admin == nil {
		return false
	}
	for _, granted := range admin.Permissions {
		if granted == permission || e.matches(granted, permission) {
			return true
		}
	}
	return false
}

func (e *PermissionEngine) matches(pattern, permission string) bool {
	if !strings.ContainsAny(pattern, "*?[{") {
		return false
	}

	e.mu.RLock()
	g, ok := e.patterns[pattern]
	e.mu.RUnlock()
	if !ok {
		compiled, err := glob.Compile(pattern)
		if err != nil {
			return false
		}
		e.mu.Lock()
		e.patterns[pattern] = compiled
		e.mu.Unlock()
		g = compiled
	}
	return g.Match(permission)
}
