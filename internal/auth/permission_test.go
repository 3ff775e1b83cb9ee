package auth_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

func principal(admin *models.Admin) *auth.Principal {
	return &auth.Principal{
		User:  &models.User{ID: uuid.New(), Username: "alice", IsActive: true},
		Admin: admin,
	}
}

func TestPermissionEngineAuthorize(t *testing.T) {
	engine := auth.NewPermissionEngine()
	target := auth.Resource{Type: models.TargetUser, ID: uuid.NewString()}

	allActions := []auth.Action{
		auth.ActionManageAdmins,
		auth.ActionManageUsers,
		auth.ActionViewReports,
		auth.ActionEditSettings,
		auth.ActionSystemSettings,
	}

	t.Run("plain user is forbidden everywhere", func(t *testing.T) {
		p := principal(nil)
		for _, a := range allActions {
			assert.ErrorIs(t, engine.Authorize(p, a, target), utils.ErrForbidden, a)
		}
	})

	t.Run("superadmin is allowed everywhere", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: true})
		for _, a := range allActions {
			assert.NoError(t, engine.Authorize(p, a, target), a)
		}
	})

	t.Run("inactive superadmin record grants nothing", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: false})
		assert.ErrorIs(t, engine.Authorize(p, auth.ActionManageAdmins, target), utils.ErrForbidden)
	})

	t.Run("exact permission", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"manage_admins"}})
		assert.NoError(t, engine.Authorize(p, auth.ActionManageAdmins, target))
		assert.ErrorIs(t, engine.Authorize(p, auth.ActionViewReports, target), utils.ErrForbidden)
	})

	t.Run("wildcard permission", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"manage_*"}})
		assert.NoError(t, engine.Authorize(p, auth.ActionManageAdmins, target))
		assert.NoError(t, engine.Authorize(p, auth.ActionManageUsers, target))
		assert.ErrorIs(t, engine.Authorize(p, auth.ActionEditSettings, target), utils.ErrForbidden)

		all := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"*"}})
		for _, a := range allActions {
			assert.NoError(t, engine.Authorize(all, a, target), a)
		}
	})

	t.Run("no hierarchy inference", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"manage"}})
		assert.ErrorIs(t, engine.Authorize(p, auth.ActionManageAdmins, target), utils.ErrForbidden)
	})

	t.Run("inactive user is forbidden", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: true})
		p.User.IsActive = false
		assert.ErrorIs(t, engine.Authorize(p, auth.ActionViewReports, target), utils.ErrForbidden)
	})

	t.Run("unknown action is forbidden", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"*"}})
		assert.ErrorIs(t, engine.Authorize(p, auth.Action("launch_rockets"), target), utils.ErrForbidden)
	})

	t.Run("superadmin is allowed unknown actions", func(t *testing.T) {
		p := principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: true})
		assert.NoError(t, engine.Authorize(p, auth.Action("launch_rockets"), target))
	})

	t.Run("nil principal", func(t *testing.T) {
		assert.ErrorIs(t, engine.Authorize(nil, auth.ActionViewReports, target), utils.ErrForbidden)
	})
}

func TestDefaultPermissions(t *testing.T) {
	assert.Contains(t, auth.DefaultPermissions(models.RoleSuperadmin), auth.PermManageAdmins)
	assert.NotContains(t, auth.DefaultPermissions(models.RoleAdmin), auth.PermManageAdmins)
	assert.Nil(t, auth.DefaultPermissions(models.Role("guest")))

	bundle := auth.DefaultPermissions(models.RoleAdmin)
	bundle[0] = "mutated"
	assert.NotEqual(t, "mutated", auth.DefaultPermissions(models.RoleAdmin)[0])
}

func TestPrincipalIsSuperuserIsDerived(t *testing.T) {
	assert.False(t, principal(nil).IsSuperuser())
	assert.False(t, principal(&models.Admin{Role: models.RoleAdmin, IsActive: true}).IsSuperuser())
	assert.True(t, principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: true}).IsSuperuser())

	var nilPrincipal *auth.Principal
	assert.False(t, nilPrincipal.IsSuperuser())
	assert.Equal(t, uuid.Nil, nilPrincipal.UserID())
}

func TestPermissionEngineHolds(t *testing.T) {
	engine := auth.NewPermissionEngine()

	assert.False(t, engine.Holds(nil, auth.PermViewReports))
	assert.False(t, engine.Holds(principal(nil), auth.PermViewReports))
	assert.True(t, engine.Holds(principal(&models.Admin{Role: models.RoleSuperadmin, IsActive: true}), "anything"))

	p := principal(&models.Admin{Role: models.RoleAdmin, IsActive: true, Permissions: []string{"manage_*", auth.PermViewReports}})
	assert.True(t, engine.Holds(p, auth.PermViewReports))
	assert.True(t, engine.Holds(p, auth.PermManageUsers))
	assert.False(t, engine.Holds(p, auth.PermSystemSettings))

	p.Admin.IsActive = false
	assert.False(t, engine.Holds(p, auth.PermViewReports))
}
