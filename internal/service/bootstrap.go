package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// BootstrapSuperadmin makes username a superadmin without an authenticated
// caller. It is meant for the operator CLI, to create the first account that
// can promote others. A missing user is registered with password, already
// verified; an existing user keeps its password.
func BootstrapSuperadmin(ctx context.Context, deps AuthDeps, req RegisterRequest) (*models.User, *models.Admin, error) {
	username := utils.NormalizeUsername(req.Username)
	if username == "" {
		return nil, nil, utils.ErrInvalidInput
	}

	user, err := deps.Users.GetByIdentity(ctx, username)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		user, err = bootstrapUser(ctx, deps, username, req)
		if err != nil {
			return nil, nil, err
		}
	case err != nil:
		return nil, nil, err
	case !user.IsActive:
		return nil, nil, utils.ErrNotFound
	}

	now := deps.clock()().UTC()
	admin, err := deps.Admins.GetByUserID(ctx, user.ID)
	switch {
	case err == nil && admin.IsActive && admin.Role == models.RoleSuperadmin:
		return user, admin, utils.ErrAlreadyAdmin
	case err == nil:
		admin.Role = models.RoleSuperadmin
		admin.Permissions = auth.DefaultPermissions(models.RoleSuperadmin)
		admin.AssignedBy = nil
		admin.AssignedAt = now
		admin.IsActive = true
		if err := deps.Admins.Update(ctx, admin); err != nil {
			return nil, nil, err
		}
	case errors.Is(err, utils.ErrNotFound):
		admin = &models.Admin{
			ID:          uuid.New(),
			UserID:      user.ID,
			Role:        models.RoleSuperadmin,
			Permissions: auth.DefaultPermissions(models.RoleSuperadmin),
			AssignedAt:  now,
			Notes:       "bootstrap",
			IsActive:    true,
		}
		if err := deps.Admins.Create(ctx, admin); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, err
	}

	auditor{store: deps.Audit}.record(ctx, uuid.Nil, models.AuditAdminPromoted, models.TargetAdmin, user.ID.String(),
		RequestMeta{}, map[string]any{"role": models.RoleSuperadmin, "via": "cli"})
	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("Superadmin bootstrapped")
	return user, admin, nil
}

func bootstrapUser(ctx context.Context, deps AuthDeps, username string, req RegisterRequest) (*models.User, error) {
	email := utils.NormalizeEmail(req.Email)
	if email == "" {
		return nil, utils.ErrInvalidInput
	}
	if err := deps.Policy.Validate(req.Password, username, email); err != nil {
		return nil, err
	}
	hash, err := deps.Hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:            uuid.New(),
		Username:      username,
		Email:         email,
		PasswordHash:  hash,
		IsActive:      true,
		EmailVerified: true,
	}
	if err := deps.Users.Create(ctx, user); err != nil {
		return nil, err
	}
	auditor{store: deps.Audit}.record(ctx, uuid.Nil, models.AuditUserRegistered, models.TargetUser, user.ID.String(),
		RequestMeta{}, map[string]any{"username": user.Username, "via": "cli"})
	return user, nil
}
