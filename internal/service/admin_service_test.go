package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/service/servicetest"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

func TestPromoteWithDefaultBundle(t *testing.T) {
	env := servicetest.NewEnv(t)
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	target := env.SeedUser(t, "alice")

	admin, err := env.Admin.Promote(context.Background(), root, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Notes: "on call",
	}, meta)
	require.NoError(t, err)

	assert.Equal(t, auth.DefaultPermissions(models.RoleAdmin), admin.Permissions)
	assert.Equal(t, "on call", admin.Notes)
	assert.Equal(t, 1, env.Mail.Count(notify.TemplateWelcomeAdmin))
}

func TestPromoteValidation(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	target := env.SeedUser(t, "alice")

	_, err := env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: target.ID, Role: "owner"}, meta)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)

	ghost := env.SeedUser(t, "ghost")
	ghost.IsActive = false
	require.NoError(t, env.Users.Update(ctx, ghost))
	_, err = env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: ghost.ID, Role: models.RoleAdmin}, meta)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	_, err = env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: target.ID, Role: models.RoleAdmin}, meta)
	require.NoError(t, err)
	_, err = env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: target.ID, Role: models.RoleAdmin}, meta)
	assert.ErrorIs(t, err, utils.ErrAlreadyAdmin)
}

func TestAdminCannotEscalate(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	manager := env.SeedAdmin(t, env.SeedUser(t, "manager"), models.RoleAdmin, auth.PermManageAdmins, auth.PermViewReports)
	target := env.SeedUser(t, "alice")

	_, err := env.Admin.Promote(ctx, manager, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleSuperadmin,
	}, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden, "only superadmins create superadmins")

	_, err = env.Admin.Promote(ctx, manager, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Permissions: []string{auth.PermSystemSettings},
	}, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden, "cannot hand out a permission not held")

	admin, err := env.Admin.Promote(ctx, manager, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Permissions: []string{" view_reports ", auth.PermViewReports},
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.PermViewReports}, admin.Permissions)

	_, err = env.Admin.GrantPermission(ctx, manager, target.ID, auth.PermSystemSettings, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)
}

func TestWildcardGrantsCoverGrantable(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	manager := env.SeedAdmin(t, env.SeedUser(t, "manager"), models.RoleAdmin, "manage_*")
	target := env.SeedUser(t, "alice")

	admin, err := env.Admin.Promote(ctx, manager, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Permissions: []string{auth.PermManageUsers},
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.PermManageUsers}, admin.Permissions)
}

func TestDemoteAndReactivate(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	target := env.SeedUser(t, "alice")

	first, err := env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: target.ID, Role: models.RoleAdmin}, meta)
	require.NoError(t, err)

	demoted, err := env.Admin.Demote(ctx, root, target.ID, meta)
	require.NoError(t, err)
	assert.False(t, demoted.IsActive)

	_, err = env.Admin.Demote(ctx, root, target.ID, meta)
	assert.ErrorIs(t, err, utils.ErrNotFound)

	again, err := env.Admin.Promote(ctx, root, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Permissions: []string{auth.PermViewReports},
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID, "the record is reused")
	assert.True(t, again.IsActive)
	assert.Equal(t, []string{auth.PermViewReports}, again.Permissions)
}

func TestDemotedAdminLosesAuthority(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	alice := env.SeedUser(t, "alice")
	bob := env.SeedUser(t, "bob")

	_, err := env.Admin.Promote(ctx, root, service.PromoteRequest{
		UserID: alice.ID, Role: models.RoleAdmin, Permissions: []string{auth.PermManageAdmins},
	}, meta)
	require.NoError(t, err)
	_, err = env.Admin.Demote(ctx, root, alice.ID, meta)
	require.NoError(t, err)

	p, err := env.Auth.Authenticate(ctx, env.Login(t, "alice").Tokens.AccessToken)
	require.NoError(t, err)
	_, err = env.Admin.Promote(ctx, p, service.PromoteRequest{UserID: bob.ID, Role: models.RoleAdmin}, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)
}

func TestSuperadminRecordsAreOwnerOnly(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	other := env.SeedAdmin(t, env.SeedUser(t, "other"), models.RoleSuperadmin)

	_, err := env.Admin.Demote(ctx, root, other.UserID(), meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)
	_, err = env.Admin.RevokePermission(ctx, root, other.UserID(), auth.PermManageUsers, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	demoted, err := env.Admin.Demote(ctx, other, other.UserID(), meta)
	require.NoError(t, err)
	assert.False(t, demoted.IsActive)
}

func TestGrantAndRevokeAreIdempotent(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	target := env.SeedUser(t, "alice")
	_, err := env.Admin.Promote(ctx, root, service.PromoteRequest{
		UserID: target.ID, Role: models.RoleAdmin, Permissions: []string{auth.PermViewReports},
	}, meta)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		admin, err := env.Admin.GrantPermission(ctx, root, target.ID, auth.PermManageUsers, meta)
		require.NoError(t, err)
		assert.Equal(t, []string{auth.PermManageUsers, auth.PermViewReports}, admin.Permissions)
	}
	for i := 0; i < 2; i++ {
		admin, err := env.Admin.RevokePermission(ctx, root, target.ID, auth.PermViewReports, meta)
		require.NoError(t, err)
		assert.Equal(t, []string{auth.PermManageUsers}, admin.Permissions)
	}

	count := func(action string) int {
		n := 0
		for _, a := range env.Audit.Actions() {
			if a == action {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count(models.AuditPermissionGranted))
	assert.Equal(t, 1, count(models.AuditPermissionRevoked))

	_, err = env.Admin.GrantPermission(ctx, root, target.ID, "  ", meta)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestSuperadminsHiddenFromAdmins(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	manager := env.SeedAdmin(t, env.SeedUser(t, "manager"), models.RoleAdmin, auth.PermManageAdmins)

	_, err := env.Admin.GetAdmin(ctx, manager, root.UserID())
	assert.ErrorIs(t, err, utils.ErrNotFound)

	got, err := env.Admin.GetAdmin(ctx, root, manager.UserID())
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, got.Role)

	list, total, err := env.Admin.ListAdmins(ctx, manager, models.AdminFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, manager.UserID(), list[0].UserID)

	_, total, err = env.Admin.ListAdmins(ctx, root, models.AdminFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	list, total, err = env.Admin.ListAdmins(ctx, manager, models.AdminFilter{Role: models.RoleSuperadmin})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestListAuditLogRequiresViewReports(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	env.SeedUser(t, "alice")
	env.Login(t, "alice")

	plain := &auth.Principal{User: env.SeedUser(t, "bob")}
	_, _, err := env.Admin.ListAuditLog(ctx, plain, models.AuditFilter{})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	auditor := env.SeedAdmin(t, env.SeedUser(t, "auditor"), models.RoleAdmin, auth.PermViewReports)
	entries, total, err := env.Admin.ListAuditLog(ctx, auditor, models.AuditFilter{Action: models.AuditLoginSuccess})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditLoginSuccess, entries[0].Action)
}
