package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/service/servicetest"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

func ptr(s string) *string { return &s }

func TestGetProfileSelfOrManageUsers(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	bob := env.SeedUser(t, "bob")
	support := env.SeedAdmin(t, env.SeedUser(t, "support"), models.RoleAdmin, auth.PermManageUsers)

	got, err := env.User.GetProfile(ctx, &auth.Principal{User: alice}, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = env.User.GetProfile(ctx, &auth.Principal{User: bob}, alice.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = env.User.GetProfile(ctx, support, alice.ID)
	assert.NoError(t, err)
}

func TestUpdateProfileChangesEmail(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	alice.EmailVerified = true
	require.NoError(t, env.Users.Update(ctx, alice))

	updated, err := env.User.UpdateProfile(ctx, &auth.Principal{User: alice}, alice.ID, service.UpdateProfileRequest{
		Email: ptr(" Alice@New.IO "),
	}, meta)
	require.NoError(t, err)
	assert.Equal(t, "alice@new.io", updated.Email)
	assert.False(t, updated.EmailVerified)
	assert.Equal(t, 1, env.Mail.Count(notify.TemplateVerifyEmail))
	assert.Contains(t, env.Audit.Actions(), models.AuditUserUpdated)
}

func TestUpdateProfileRejectsTakenUsername(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	env.SeedUser(t, "bob")

	_, err := env.User.UpdateProfile(ctx, &auth.Principal{User: alice}, alice.ID, service.UpdateProfileRequest{
		Username: ptr("bob"),
	}, meta)
	assert.ErrorIs(t, err, utils.ErrDuplicateIdentity)

	_, err = env.User.UpdateProfile(ctx, &auth.Principal{User: alice}, alice.ID, service.UpdateProfileRequest{
		Email: ptr("nope"),
	}, meta)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestUpdateProfileWithoutChangesIsNoop(t *testing.T) {
	env := servicetest.NewEnv(t)
	alice := env.SeedUser(t, "alice")

	_, err := env.User.UpdateProfile(context.Background(), &auth.Principal{User: alice}, alice.ID, service.UpdateProfileRequest{
		Username: ptr("alice"),
	}, meta)
	require.NoError(t, err)
	assert.Empty(t, env.Audit.Actions())
}

func TestManageUsersCannotTouchSuperadmin(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	support := env.SeedAdmin(t, env.SeedUser(t, "support"), models.RoleAdmin, auth.PermManageUsers)

	_, err := env.User.UpdateProfile(ctx, support, root.UserID(), service.UpdateProfileRequest{
		Email: ptr("attacker@evil.io"),
	}, meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	err = env.User.Deactivate(ctx, support, root.UserID(), meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)
	assert.True(t, env.Users.Get(t, root.UserID()).IsActive)

	peer := env.SeedAdmin(t, env.SeedUser(t, "peer"), models.RoleSuperadmin)
	err = env.User.Deactivate(ctx, peer, root.UserID(), meta)
	assert.ErrorIs(t, err, utils.ErrForbidden)
	assert.True(t, env.Users.Get(t, root.UserID()).IsActive)
}

func TestChangePassword(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	env.SeedUser(t, "alice")
	old := env.Login(t, "alice")
	p, err := env.Auth.Authenticate(ctx, old.Tokens.AccessToken)
	require.NoError(t, err)

	_, err = env.User.ChangePassword(ctx, p, "Wrong1!pass", "N3w!passphrase", meta)
	assert.ErrorIs(t, err, utils.ErrInvalidCredentials)

	_, err = env.User.ChangePassword(ctx, p, strongPassword, "password", meta)
	assert.ErrorIs(t, err, utils.ErrWeakPassword)

	pair, err := env.User.ChangePassword(ctx, p, strongPassword, "N3w!passphrase", meta)
	require.NoError(t, err)

	_, err = env.Auth.Authenticate(ctx, old.Tokens.AccessToken)
	assert.ErrorIs(t, err, utils.ErrTokenRevoked)
	_, err = env.Auth.Refresh(ctx, old.Tokens.RefreshToken, meta)
	assert.ErrorIs(t, err, utils.ErrTokenRevoked)

	_, err = env.Auth.Authenticate(ctx, pair.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, 1, env.Mail.Count(notify.TemplatePasswordChanged))
}

func TestDeactivate(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	root := env.SeedAdmin(t, env.SeedUser(t, "root"), models.RoleSuperadmin)
	alice := env.SeedUser(t, "alice")
	res := env.Login(t, "alice")

	_, err := env.Admin.Promote(ctx, root, service.PromoteRequest{UserID: alice.ID, Role: models.RoleAdmin}, meta)
	require.NoError(t, err)

	require.NoError(t, env.User.Deactivate(ctx, root, alice.ID, meta))

	assert.False(t, env.Users.Get(t, alice.ID).IsActive)
	admin, err := env.Admins.GetByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, admin.IsActive)

	_, err = env.Auth.Authenticate(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, utils.ErrTokenRevoked)
	_, err = env.Auth.Login(ctx, "alice", strongPassword, meta)
	assert.ErrorIs(t, err, utils.ErrInvalidCredentials)

	assert.NoError(t, env.User.Deactivate(ctx, root, alice.ID, meta), "deactivating twice is a no-op")
}

func TestSelfDeactivate(t *testing.T) {
	env := servicetest.NewEnv(t)
	alice := env.SeedUser(t, "alice")

	require.NoError(t, env.User.Deactivate(context.Background(), &auth.Principal{User: alice}, alice.ID, meta))
	assert.False(t, env.Users.Get(t, alice.ID).IsActive)
}

func boolPtr(b bool) *bool { return &b }

func TestListUsersRequiresManageUsers(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	env.SeedUser(t, "bob")
	carol := env.SeedUser(t, "carol")
	carol.IsActive = false
	require.NoError(t, env.Users.Update(ctx, carol))
	support := env.SeedAdmin(t, env.SeedUser(t, "support"), models.RoleAdmin, auth.PermManageUsers)

	_, _, err := env.User.ListUsers(ctx, &auth.Principal{User: alice}, models.UserFilter{})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	users, total, err := env.User.ListUsers(ctx, support, models.UserFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)

	users, total, err = env.User.ListUsers(ctx, support, models.UserFilter{Search: "BO"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "bob", users[0].Username)

	users, _, err = env.User.ListUsers(ctx, support, models.UserFilter{IsActive: boolPtr(false)})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, carol.ID, users[0].ID)
}

func appendActivity(t *testing.T, env *servicetest.Env, actor uuid.UUID, action string, n int) {
	t.Helper()
	for range n {
		require.NoError(t, env.Audit.Append(context.Background(), &models.AuditLogEntry{
			ActorID: &actor, Action: action, TargetType: models.TargetUser, IPAddress: "10.0.0.9",
		}))
	}
}

func TestActivitySummaryCountsWindow(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	bob := env.SeedUser(t, "bob")

	appendActivity(t, env, alice.ID, models.AuditUserUpdated, 4)
	env.Clock.Advance(40 * 24 * time.Hour)
	appendActivity(t, env, alice.ID, models.AuditLoginSuccess, 8)
	appendActivity(t, env, alice.ID, models.AuditPasswordChanged, 4)
	appendActivity(t, env, bob.ID, models.AuditLoginSuccess, 3)

	summary, err := env.User.ActivitySummary(ctx, &auth.Principal{User: alice}, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, service.DefaultActivityDays, summary.DaysBack)
	assert.Equal(t, 12, summary.TotalActions)
	assert.Equal(t, map[string]int{
		models.AuditLoginSuccess:    8,
		models.AuditPasswordChanged: 4,
	}, summary.ActionBreakdown)
	assert.Len(t, summary.RecentActivity, 10)
	assert.Equal(t, models.AuditPasswordChanged, summary.RecentActivity[0].Action)
	assert.Equal(t, "alice", summary.User.Username)

	summary, err = env.User.ActivitySummary(ctx, &auth.Principal{User: alice}, alice.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 16, summary.TotalActions)

	_, err = env.User.ActivitySummary(ctx, &auth.Principal{User: alice}, alice.ID, service.MaxActivityDays+1)
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}

func TestActivitySummarySelfOrManageUsers(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	bob := env.SeedUser(t, "bob")
	support := env.SeedAdmin(t, env.SeedUser(t, "support"), models.RoleAdmin, auth.PermManageUsers)

	_, err := env.User.ActivitySummary(ctx, &auth.Principal{User: bob}, alice.ID, 7)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = env.User.ActivitySummary(ctx, support, alice.ID, 7)
	assert.NoError(t, err)

	_, err = env.User.ActivitySummary(ctx, support, uuid.New(), 7)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestActivitySummaryIsCached(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	self := &auth.Principal{User: alice}

	env.Login(t, "alice")
	first, err := env.User.ActivitySummary(ctx, self, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TotalActions)

	env.Login(t, "alice")
	cached, err := env.User.ActivitySummary(ctx, self, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalActions)

	env.Clock.Advance(6 * time.Minute)
	fresh, err := env.User.ActivitySummary(ctx, self, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalActions)

	_, err = env.User.UpdateProfile(ctx, self, alice.ID, service.UpdateProfileRequest{Username: ptr("alicia")}, meta)
	require.NoError(t, err)
	renamed, err := env.User.ActivitySummary(ctx, self, alice.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "alicia", renamed.User.Username)
	assert.Equal(t, 3, renamed.TotalActions)
}

func TestActivitySummaryReplacesUndecodableCacheValue(t *testing.T) {
	env := servicetest.NewEnv(t)
	ctx := context.Background()
	alice := env.SeedUser(t, "alice")
	appendActivity(t, env, alice.ID, models.AuditLoginSuccess, 2)

	key := fmt.Sprintf("user_activity_summary:%s:%d", alice.ID, 7)
	require.NoError(t, env.Cache.Set(ctx, key, "{not json", time.Minute))

	summary, err := env.User.ActivitySummary(ctx, &auth.Principal{User: alice}, alice.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalActions)

	raw, err := env.Cache.Get(ctx, key)
	require.NoError(t, err)
	var stored models.ActivitySummary
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	assert.Equal(t, 2, stored.TotalActions)
}
