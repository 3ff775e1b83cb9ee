package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/metrics"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// AuthDeps groups the collaborators shared by the services.
type AuthDeps struct {
	Users       UserStore
	Admins      AdminStore
	Audit       AuditStore
	Policy      *auth.PasswordPolicy
	Hasher      auth.CredentialHasher
	Tokens      *auth.TokenService
	Limiter     *auth.RateLimiter
	Permissions *auth.PermissionEngine
	Notifier    notify.Notifier
	Metrics     *metrics.Metrics
	Cache       ValueCache
	FrontendURL string

	// Now replaces time.Now when set.
	Now func() time.Time
}

func (d AuthDeps) clock() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// RegisterRequest is the payload of a registration.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	User   *models.User
	Tokens *auth.Pair
}

// AuthService orchestrates registration, login, token refresh, logout,
// password reset and email verification.
type AuthService struct {
	users   UserStore
	admins  AdminStore
	policy  *auth.PasswordPolicy
	hasher  auth.CredentialHasher
	tokens  *auth.TokenService
	limiter *auth.RateLimiter
	metrics *metrics.Metrics
	audit   auditor
	mail    mailer
	now     func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		users:   deps.Users,
		admins:  deps.Admins,
		policy:  deps.Policy,
		hasher:  deps.Hasher,
		tokens:  deps.Tokens,
		limiter: deps.Limiter,
		metrics: deps.Metrics,
		audit:   auditor{store: deps.Audit},
		mail:    mailer{notifier: deps.Notifier, tokens: deps.Tokens, frontendURL: deps.FrontendURL},
		now:     deps.clock(),
	}
}

// Register creates an active, unverified user and mails a verification link.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest, meta RequestMeta) (*models.User, error) {
	username := utils.NormalizeUsername(req.Username)
	email := utils.NormalizeEmail(req.Email)
	if username == "" || !strings.Contains(email, "@") {
		return nil, utils.ErrInvalidInput
	}

	if err := s.allow(ctx, auth.RateRegister, meta.IP); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(req.Password, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, utils.ErrDuplicateIdentity) {
			log.Info().Str("username", username).Msg("Registration rejected: identity taken")
		}
		return nil, err
	}

	s.audit.record(ctx, user.ID, models.AuditUserRegistered, models.TargetUser, user.ID.String(), meta,
		map[string]any{"username": user.Username, "email": user.Email})
	s.mail.sendVerification(ctx, user)

	log.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("User registered")
	return user, nil
}

// Login checks credentials and issues an access and refresh token. Unknown,
// inactive and wrong-password attempts all fail with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, identity, password string, meta RequestMeta) (*LoginResult, error) {
	identity = utils.NormalizeIdentity(identity)

	if err := s.allow(ctx, auth.RateLoginIP, meta.IP); err != nil {
		s.metrics.Login(metrics.OutcomeRateLimited)
		return nil, err
	}
	if err := s.allow(ctx, auth.RateLogin, identity+"|"+meta.IP); err != nil {
		s.metrics.Login(metrics.OutcomeRateLimited)
		return nil, err
	}

	user, err := s.users.GetByIdentity(ctx, identity)
	switch {
	case errors.Is(err, utils.ErrNotFound):
		s.hasher.VerifyDummy(password)
		return nil, s.loginFailed(ctx, uuid.Nil, identity, meta)
	case err != nil:
		s.metrics.Login(metrics.OutcomeError)
		return nil, err
	}

	if !s.hasher.Verify(password, user.PasswordHash) || !user.IsActive {
		return nil, s.loginFailed(ctx, user.ID, identity, meta)
	}

	pair, err := s.tokens.IssuePair(user.ID, user.TokenVersion)
	if err != nil {
		s.metrics.Login(metrics.OutcomeError)
		return nil, err
	}
	s.metrics.TokensIssued(string(auth.TokenAccess), 1)
	s.metrics.TokensIssued(string(auth.TokenRefresh), 1)

	now := s.now().UTC()
	if err := s.users.RecordLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to record login")
	} else {
		user.LastLoginAt = &now
	}
	s.rehash(ctx, user, password)

	s.audit.record(ctx, user.ID, models.AuditLoginSuccess, models.TargetUser, user.ID.String(), meta, nil)
	s.metrics.Login(metrics.OutcomeSuccess)
	return &LoginResult{User: user, Tokens: pair}, nil
}

// rehash upgrades an outdated hash after a successful login. The write is
// skipped when the stored hash changed after it was read.
func (s *AuthService) rehash(ctx context.Context, user *models.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to rehash password")
		return
	}

	ok, err := s.users.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, hash)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("Failed to store upgraded password hash")
	case !ok:
		log.Info().Str("user_id", user.ID.String()).Msg("Password changed during login; rehash skipped")
	default:
		user.PasswordHash = hash
		log.Info().Str("user_id", user.ID.String()).Msg("Password hash upgraded")
	}
}

func (s *AuthService) loginFailed(ctx context.Context, userID uuid.UUID, identity string, meta RequestMeta) error {
	target := ""
	if userID != uuid.Nil {
		target = userID.String()
	}
	s.audit.record(ctx, userID, models.AuditLoginFailed, models.TargetUser, target, meta,
		map[string]any{"identity": identity})
	s.metrics.Login(metrics.OutcomeInvalid)
	log.Info().Str("identity", identity).Str("ip", meta.IP).Msg("Login failed")
	return utils.ErrInvalidCredentials
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued. Presenting the same refresh token again fails with
// ErrTokenRevoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, meta RequestMeta) (*auth.Pair, error) {
	if err := s.allow(ctx, auth.RateRefresh, meta.IP); err != nil {
		return nil, err
	}

	claims, err := s.tokens.Verify(ctx, refreshToken, auth.TokenRefresh)
	if err != nil {
		if errors.Is(err, utils.ErrTokenRevoked) {
			s.audit.record(ctx, uuid.Nil, models.AuditRefreshReplayed, models.TargetUser, "", meta, nil)
			log.Warn().Str("ip", meta.IP).Msg("Revoked refresh token presented")
		}
		return nil, err
	}

	user, err := s.liveUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.Rotate(ctx, claims, user.TokenVersion)
	if err != nil {
		if errors.Is(err, utils.ErrRotationIncomplete) {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("Refresh rotation incomplete")
		}
		return nil, err
	}
	s.metrics.TokenRevoked("rotation")
	s.metrics.TokensIssued(string(auth.TokenAccess), 1)
	s.metrics.TokensIssued(string(auth.TokenRefresh), 1)

	s.audit.record(ctx, user.ID, models.AuditTokenRefreshed, models.TargetUser, user.ID.String(), meta, nil)
	return pair, nil
}

// Logout revokes the access token of the principal and, when given and
// owned by the same user, the refresh token.
func (s *AuthService) Logout(ctx context.Context, p *auth.Principal, refreshToken string, meta RequestMeta) error {
	if p == nil || p.Claims == nil {
		return utils.ErrTokenMalformed
	}
	if err := s.tokens.Revoke(ctx, p.Claims); err != nil {
		return err
	}
	s.metrics.TokenRevoked("logout")

	if refreshToken != "" {
		claims, err := s.tokens.Verify(ctx, refreshToken, auth.TokenRefresh)
		switch {
		case err == nil && claims.Subject == p.Claims.Subject:
			if err := s.tokens.Revoke(ctx, claims); err != nil {
				return err
			}
			s.metrics.TokenRevoked("logout")
		case errors.Is(err, utils.ErrUnavailable):
			return err
		}
	}

	s.audit.record(ctx, p.UserID(), models.AuditLogout, models.TargetUser, p.UserID().String(), meta, nil)
	return nil
}

// RequestPasswordReset mails a single-use reset link. Unknown or inactive
// addresses succeed silently so the response does not reveal which
// accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
	email = utils.NormalizeEmail(email)

	if err := s.allow(ctx, auth.RatePasswordReset, "ip:"+meta.IP); err != nil {
		return err
	}
	if err := s.allow(ctx, auth.RatePasswordReset, "email:"+email); err != nil {
		return err
	}

	user, err := s.users.GetByIdentity(ctx, email)
	if errors.Is(err, utils.ErrNotFound) || (err == nil && !user.IsActive) {
		log.Info().Str("ip", meta.IP).Msg("Password reset requested for unknown or inactive account")
		return nil
	}
	if err != nil {
		return err
	}

	token, _, err := s.tokens.Issue(user.ID, user.TokenVersion, auth.TokenReset)
	if err != nil {
		return err
	}
	s.metrics.TokensIssued(string(auth.TokenReset), 1)

	s.mail.send(ctx, notify.TemplatePasswordReset, user, map[string]string{
		"link":    s.mail.link("/reset-password", token),
		"expires": s.tokens.TTL(auth.TokenReset).String(),
	})
	s.audit.record(ctx, user.ID, models.AuditResetRequested, models.TargetUser, user.ID.String(), meta, nil)
	return nil
}

// ResetPassword redeems a reset token. The token is consumed before the new
// hash is stored, so it can be redeemed at most once; every token issued to
// the user before the reset stops verifying.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, meta RequestMeta) error {
	claims, err := s.tokens.Verify(ctx, token, auth.TokenReset)
	if err != nil {
		return err
	}
	user, err := s.liveUser(ctx, claims)
	if err != nil {
		return err
	}

	if err := s.policy.Validate(newPassword, user.Username, user.Email); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	first, err := s.tokens.Consume(ctx, claims)
	if err != nil {
		return err
	}
	if !first {
		return utils.ErrTokenRevoked
	}

	version, ok, err := s.users.SetPassword(ctx, user.ID, claims.Version, hash)
	if err != nil {
		return err
	}
	if !ok {
		return utils.ErrTokenRevoked
	}
	user.PasswordHash = hash
	user.TokenVersion = version
	s.metrics.TokenRevoked("password_reset")

	s.audit.record(ctx, user.ID, models.AuditPasswordReset, models.TargetUser, user.ID.String(), meta, nil)
	s.mail.send(ctx, notify.TemplatePasswordChanged, user, nil)
	log.Info().Str("user_id", user.ID.String()).Msg("Password reset")
	return nil
}

// VerifyEmail marks the user's address as verified. Verifying twice is a
// no-op.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, meta RequestMeta) (*models.User, error) {
	claims, err := s.tokens.Verify(ctx, token, auth.TokenVerify)
	if err != nil {
		return nil, err
	}
	user, err := s.liveUser(ctx, claims)
	if err != nil {
		return nil, err
	}
	if user.EmailVerified {
		return user, nil
	}

	ok, err := s.users.MarkEmailVerified(ctx, user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.ErrTokenRevoked
	}
	user.EmailVerified = true
	s.audit.record(ctx, user.ID, models.AuditEmailVerified, models.TargetUser, user.ID.String(), meta,
		map[string]any{"email": user.Email})
	return user, nil
}

// ResendVerification mails a new verification link to the principal.
func (s *AuthService) ResendVerification(ctx context.Context, p *auth.Principal) error {
	if p == nil || p.User == nil {
		return utils.ErrForbidden
	}
	if p.User.EmailVerified {
		return nil
	}
	s.mail.sendVerification(ctx, p.User)
	return nil
}

// Authenticate resolves an access token to a Principal. Tokens of deactivated
// users, or issued before a password change, are reported as revoked.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error) {
	claims, err := s.tokens.Verify(ctx, accessToken, auth.TokenAccess)
	if err != nil {
		return nil, err
	}
	user, err := s.liveUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	admin, err := s.admins.GetByUserID(ctx, user.ID)
	if errors.Is(err, utils.ErrNotFound) {
		admin = nil
	} else if err != nil {
		return nil, err
	}

	return &auth.Principal{User: user, Admin: admin, Claims: claims}, nil
}

// liveUser loads the token's subject and checks it is still active and that
// the token predates no password change or deactivation.
func (s *AuthService) liveUser(ctx context.Context, claims *auth.Claims) (*models.User, error) {
	id, err := claims.UserID()
	if err != nil {
		return nil, utils.ErrTokenMalformed
	}
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, utils.ErrNotFound) {
		return nil, utils.ErrTokenRevoked
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive || user.TokenVersion != claims.Version {
		return nil, utils.ErrTokenRevoked
	}
	return user, nil
}

func (s *AuthService) allow(ctx context.Context, action auth.RateAction, identity string) error {
	err := s.limiter.Allow(ctx, action, identity)
	if errors.Is(err, utils.ErrRateLimited) {
		s.metrics.RateLimited(string(action))
		log.Warn().Str("action", string(action)).Msg("Rate limit exceeded")
	}
	return err
}
