package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/cache"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// UpdateProfileRequest changes the fields that are set.
type UpdateProfileRequest struct {
	Username *string
	Email    *string
}

// Activity summary window and caching.
const (
	DefaultActivityDays = 30
	MaxActivityDays     = 365
	activitySummaryTTL  = 5 * time.Minute
	recentActivityLimit = 10
)

// UserService manages a user's own account, or another user's account for
// callers holding manage_users.
type UserService struct {
	users       UserStore
	admins      AdminStore
	policy      *auth.PasswordPolicy
	hasher      auth.CredentialHasher
	tokens      *auth.TokenService
	permissions *auth.PermissionEngine
	auditLog    AuditStore
	cache       ValueCache
	audit       auditor
	mail        mailer
	now         func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(deps AuthDeps) *UserService {
	return &UserService{
		users:       deps.Users,
		admins:      deps.Admins,
		policy:      deps.Policy,
		hasher:      deps.Hasher,
		tokens:      deps.Tokens,
		permissions: deps.Permissions,
		auditLog:    deps.Audit,
		cache:       deps.Cache,
		audit:       auditor{store: deps.Audit},
		mail:        mailer{notifier: deps.Notifier, tokens: deps.Tokens, frontendURL: deps.FrontendURL},
		now:         deps.clock(),
	}
}

// GetProfile returns a user's profile.
func (s *UserService) GetProfile(ctx context.Context, caller *auth.Principal, userID uuid.UUID) (*models.User, error) {
	if err := s.authorizeSelfOr(caller, userID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, userID)
}

// UpdateProfile changes username and/or email. A changed email must be
// verified again.
func (s *UserService) UpdateProfile(ctx context.Context, caller *auth.Principal, userID uuid.UUID, req UpdateProfileRequest, meta RequestMeta) (*models.User, error) {
	if err := s.authorizeSelfOr(caller, userID); err != nil {
		return nil, err
	}
	if err := s.guardSuperadmin(ctx, caller, userID); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if req.Username != nil {
		username := utils.NormalizeUsername(*req.Username)
		if username == "" {
			return nil, utils.ErrInvalidInput
		}
		if username != user.Username {
			changes["username"] = map[string]string{"from": user.Username, "to": username}
			user.Username = username
		}
	}
	emailChanged := false
	if req.Email != nil {
		email := utils.NormalizeEmail(*req.Email)
		if !strings.Contains(email, "@") {
			return nil, utils.ErrInvalidInput
		}
		if email != user.Email {
			changes["email"] = map[string]string{"from": user.Email, "to": email}
			user.Email = email
			emailChanged = true
		}
	}
	if len(changes) == 0 {
		return user, nil
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	s.forgetSummary(ctx, user.ID)

	s.audit.record(ctx, caller.UserID(), models.AuditUserUpdated, models.TargetUser, user.ID.String(), meta, changes)
	if emailChanged {
		s.mail.sendVerification(ctx, user)
	}
	return user, nil
}

// ChangePassword replaces the caller's password after checking the current
// one. All previously issued tokens stop verifying; a fresh pair is returned
// so the current session continues.
func (s *UserService) ChangePassword(ctx context.Context, caller *auth.Principal, current, newPassword string, meta RequestMeta) (*auth.Pair, error) {
	if caller == nil || caller.User == nil {
		return nil, utils.ErrForbidden
	}

	user, err := s.users.GetByID(ctx, caller.UserID())
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return nil, utils.ErrInvalidCredentials
	}
	if err := s.policy.Validate(newPassword, user.Username, user.Email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	// A password change or deactivation that landed after the read wins.
	version, ok, err := s.users.SetPassword(ctx, user.ID, user.TokenVersion, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.ErrTokenRevoked
	}
	user.PasswordHash = hash
	user.TokenVersion = version

	pair, err := s.tokens.IssuePair(user.ID, user.TokenVersion)
	if err != nil {
		return nil, err
	}

	s.audit.record(ctx, user.ID, models.AuditPasswordChanged, models.TargetUser, user.ID.String(), meta, nil)
	s.mail.send(ctx, notify.TemplatePasswordChanged, user, nil)
	log.Info().Str("user_id", user.ID.String()).Msg("Password changed")
	return pair, nil
}

// Deactivate soft-deletes a user: the account stays but can no longer log
// in, every issued token stops verifying and an admin record is
// deactivated with it.
func (s *UserService) Deactivate(ctx context.Context, caller *auth.Principal, userID uuid.UUID, meta RequestMeta) error {
	if err := s.authorizeSelfOr(caller, userID); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}

	admin, err := s.admins.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		admin = nil
	case err != nil:
		return err
	case admin.IsActive && admin.Role == models.RoleSuperadmin && !caller.Is(userID):
		return utils.ErrForbidden
	}

	// The user goes first: an admin record left active behind an inactive
	// user grants nothing, since inactive users cannot authenticate.
	ok, err := s.users.Deactivate(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	s.forgetSummary(ctx, userID)

	if admin != nil {
		demoted, err := s.admins.Deactivate(ctx, userID)
		if err != nil {
			return err
		}
		if demoted {
			s.audit.record(ctx, caller.UserID(), models.AuditAdminDemoted, models.TargetAdmin, userID.String(), meta,
				map[string]any{"reason": "user deactivated"})
		}
	}

	s.audit.record(ctx, caller.UserID(), models.AuditUserDeactivated, models.TargetUser, userID.String(), meta, nil)
	log.Info().Str("user_id", userID.String()).Str("by", caller.UserID().String()).Msg("User deactivated")
	return nil
}

// ListUsers returns a page of users matching filter. It requires
// manage_users.
func (s *UserService) ListUsers(ctx context.Context, caller *auth.Principal, filter models.UserFilter) ([]*models.User, int, error) {
	if err := s.permissions.Authorize(caller, auth.ActionManageUsers, auth.Resource{Type: models.TargetUser}); err != nil {
		return nil, 0, err
	}
	return s.users.List(ctx, filter)
}

// ActivitySummary aggregates what a user did over the last days days: a
// count per audit action and the most recent entries. Summaries are cached
// for five minutes; days <= 0 selects DefaultActivityDays.
func (s *UserService) ActivitySummary(ctx context.Context, caller *auth.Principal, userID uuid.UUID, days int) (*models.ActivitySummary, error) {
	if err := s.authorizeSelfOr(caller, userID); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = DefaultActivityDays
	}
	if days > MaxActivityDays {
		return nil, utils.ErrInvalidInput
	}

	key := activitySummaryKey(userID, days)
	if summary, ok := s.cachedSummary(ctx, key); ok {
		return summary, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)
	filter := models.AuditFilter{ActorID: &userID, Since: &since}
	counts, err := s.auditLog.CountByAction(ctx, filter)
	if err != nil {
		return nil, err
	}
	filter.Limit = recentActivityLimit
	recent, _, err := s.auditLog.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &models.ActivitySummary{
		User: models.ActivityUser{
			ID:          user.ID,
			Username:    user.Username,
			Email:       user.Email,
			IsActive:    user.IsActive,
			LastLoginAt: user.LastLoginAt,
			CreatedAt:   user.CreatedAt,
		},
		DaysBack:        days,
		ActionBreakdown: counts,
		RecentActivity:  make([]models.RecentActivity, 0, len(recent)),
		GeneratedAt:     now,
	}
	for _, n := range counts {
		summary.TotalActions += n
	}
	for _, e := range recent {
		summary.RecentActivity = append(summary.RecentActivity, models.RecentActivity{
			Action:     e.Action,
			TargetType: e.TargetType,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		})
	}

	s.storeSummary(ctx, key, summary)
	return summary, nil
}

func activitySummaryKey(userID uuid.UUID, days int) string {
	return fmt.Sprintf("user_activity_summary:%s:%d", userID, days)
}

// cachedSummary returns a cached summary. Cache failures are logged and
// treated as misses.
func (s *UserService) cachedSummary(ctx context.Context, key string) (*models.ActivitySummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("Activity summary cache read failed")
		}
		return nil, false
	}

	var summary models.ActivitySummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable activity summary")
		if err := s.cache.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Activity summary cache delete failed")
		}
		return nil, false
	}
	return &summary, true
}

func (s *UserService) storeSummary(ctx context.Context, key string, summary *models.ActivitySummary) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to encode activity summary")
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), activitySummaryTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Activity summary cache write failed")
	}
}

// forgetSummary drops the cached default-window summary of a user whose
// account details changed. Other windows expire on their own.
func (s *UserService) forgetSummary(ctx context.Context, userID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activitySummaryKey(userID, DefaultActivityDays)); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Activity summary cache delete failed")
	}
}

func (s *UserService) authorizeSelfOr(caller *auth.Principal, userID uuid.UUID) error {
	if caller.Is(userID) {
		return nil
	}
	return s.permissions.Authorize(caller, auth.ActionManageUsers, auth.Resource{Type: models.TargetUser, ID: userID.String()})
}

// guardSuperadmin refuses changes to another user's account when that user
// is an active superadmin.
func (s *UserService) guardSuperadmin(ctx context.Context, caller *auth.Principal, userID uuid.UUID) error {
	if caller.Is(userID) {
		return nil
	}
	admin, err := s.admins.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		return nil
	case err != nil:
		return err
	case admin.IsActive && admin.Role == models.RoleSuperadmin:
		return utils.ErrForbidden
	}
	return nil
}
