// Package servicetest provides in-memory stores and a fully wired set of
// services for tests of the service and HTTP layers.
package servicetest

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/cache"
	"github.com/GTDGit/gtd_auth/internal/config"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/notify"
	"github.com/GTDGit/gtd_auth/internal/service"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

// MemUsers mimics the users table, including its unique constraints and the
// guarded single-column writes of the PostgreSQL repository.
type MemUsers struct {
	mu   sync.Mutex
	byID map[uuid.UUID]models.User

	// Err, when set, is returned by every method.
	Err error
}

// NewMemUsers returns an empty MemUsers.
func NewMemUsers() *MemUsers {
	return &MemUsers{byID: make(map[uuid.UUID]models.User)}
}

// GetByID returns a copy of the stored user.
func (m *MemUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &u, nil
}

// GetByIdentity matches identity against username and email.
func (m *MemUsers) GetByIdentity(_ context.Context, identity string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	for _, u := range m.byID {
		if u.Username == identity || u.Email == identity {
			return &u, nil
		}
	}
	return nil, utils.ErrNotFound
}

// List filters users and orders them by username. Offset and Limit apply
// after filtering.
func (m *MemUsers) List(_ context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, 0, m.Err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := []*models.User{}
	for _, u := range m.byID {
		if filter.IsActive != nil && u.IsActive != *filter.IsActive {
			continue
		}
		if filter.EmailVerified != nil && u.EmailVerified != *filter.EmailVerified {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		out = append(out, &u)
	}
	slices.SortFunc(out, func(a, b *models.User) int { return strings.Compare(a.Username, b.Username) })

	total := len(out)
	out = out[min(filter.Offset, total):]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// Create stores user, rejecting a taken username or email.
func (m *MemUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if m.conflicts(user) {
		return utils.ErrDuplicateIdentity
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	m.byID[user.ID] = *user
	return nil
}

// Update overwrites the stored row. Services never call it; tests use it to
// arrange state.
func (m *MemUsers) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[user.ID]; !ok {
		return utils.ErrNotFound
	}
	if m.conflicts(user) {
		return utils.ErrDuplicateIdentity
	}
	user.UpdatedAt = time.Now()
	m.byID[user.ID] = *user
	return nil
}

// RecordLogin sets LastLoginAt.
func (m *MemUsers) RecordLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.mutate(id, func(u *models.User) (bool, error) {
		u.LastLoginAt = &at
		return true, nil
	})
}

// UpdatePasswordHash swaps the hash while it still equals oldHash.
func (m *MemUsers) UpdatePasswordHash(_ context.Context, id uuid.UUID, oldHash, newHash string) (bool, error) {
	var ok bool
	err := m.mutate(id, func(u *models.User) (bool, error) {
		ok = u.PasswordHash == oldHash
		if ok {
			u.PasswordHash = newHash
		}
		return ok, nil
	})
	return ok, err
}

// SetPassword stores hash and bumps TokenVersion while the user is active
// at version.
func (m *MemUsers) SetPassword(_ context.Context, id uuid.UUID, version int, hash string) (int, bool, error) {
	var next int
	var ok bool
	err := m.mutate(id, func(u *models.User) (bool, error) {
		ok = u.IsActive && u.TokenVersion == version
		if ok {
			u.PasswordHash = hash
			u.TokenVersion++
			next = u.TokenVersion
		}
		return ok, nil
	})
	return next, ok, err
}

// UpdateProfile writes Username and Email, clearing EmailVerified when the
// email changes.
func (m *MemUsers) UpdateProfile(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	stored, ok := m.byID[user.ID]
	if !ok {
		return utils.ErrNotFound
	}
	if m.conflicts(user) {
		return utils.ErrDuplicateIdentity
	}
	stored.EmailVerified = stored.EmailVerified && stored.Email == user.Email
	stored.Username = user.Username
	stored.Email = user.Email
	stored.UpdatedAt = time.Now()
	m.byID[user.ID] = stored

	user.EmailVerified = stored.EmailVerified
	user.UpdatedAt = stored.UpdatedAt
	return nil
}

// MarkEmailVerified sets EmailVerified while the stored email equals email.
func (m *MemUsers) MarkEmailVerified(_ context.Context, id uuid.UUID, email string) (bool, error) {
	var ok bool
	err := m.mutate(id, func(u *models.User) (bool, error) {
		ok = u.Email == email
		if ok {
			u.EmailVerified = true
		}
		return ok, nil
	})
	return ok, err
}

// Deactivate clears IsActive and bumps TokenVersion of an active user.
func (m *MemUsers) Deactivate(_ context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := m.mutate(id, func(u *models.User) (bool, error) {
		ok = u.IsActive
		if ok {
			u.IsActive = false
			u.TokenVersion++
		}
		return ok, nil
	})
	return ok, err
}

// mutate applies fn to the stored row and keeps the result when fn reports
// a change.
func (m *MemUsers) mutate(id uuid.UUID, fn func(*models.User) (bool, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	u, ok := m.byID[id]
	if !ok {
		return utils.ErrNotFound
	}
	changed, err := fn(&u)
	if err != nil || !changed {
		return err
	}
	u.UpdatedAt = time.Now()
	m.byID[id] = u
	return nil
}

func (m *MemUsers) conflicts(user *models.User) bool {
	for id, u := range m.byID {
		if id != user.ID && (u.Username == user.Username || u.Email == user.Email) {
			return true
		}
	}
	return false
}

// Get returns the stored row, failing the test when it is missing.
func (m *MemUsers) Get(t testing.TB, id uuid.UUID) models.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	require.True(t, ok, "user %s not stored", id)
	return u
}

// MemAdmins keeps admin records keyed by user id.
type MemAdmins struct {
	mu       sync.Mutex
	byUserID map[uuid.UUID]models.Admin
}

// NewMemAdmins returns an empty MemAdmins.
func NewMemAdmins() *MemAdmins {
	return &MemAdmins{byUserID: make(map[uuid.UUID]models.Admin)}
}

func cloneAdmin(a models.Admin) *models.Admin {
	a.Permissions = slices.Clone(a.Permissions)
	return &a
}

// GetByUserID returns a copy of the user's record, active or not.
func (m *MemAdmins) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byUserID[userID]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return cloneAdmin(a), nil
}

// Create stores admin unless the user already has a record.
func (m *MemAdmins) Create(_ context.Context, admin *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUserID[admin.UserID]; ok {
		return utils.ErrAlreadyAdmin
	}
	admin.CreatedAt = time.Now()
	m.byUserID[admin.UserID] = *cloneAdmin(*admin)
	return nil
}

// Update overwrites the user's record.
func (m *MemAdmins) Update(_ context.Context, admin *models.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUserID[admin.UserID]; !ok {
		return utils.ErrNotFound
	}
	m.byUserID[admin.UserID] = *cloneAdmin(*admin)
	return nil
}

// Reactivate overwrites an inactive record.
func (m *MemAdmins) Reactivate(_ context.Context, admin *models.Admin) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byUserID[admin.UserID]
	if !ok {
		return false, utils.ErrNotFound
	}
	if stored.IsActive {
		return false, nil
	}
	admin.IsActive = true
	m.byUserID[admin.UserID] = *cloneAdmin(*admin)
	return true, nil
}

// Deactivate clears IsActive of an active record.
func (m *MemAdmins) Deactivate(_ context.Context, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byUserID[userID]
	if !ok || !a.IsActive {
		return false, nil
	}
	a.IsActive = false
	m.byUserID[userID] = a
	return true, nil
}

// AddPermission grants permission to an active record.
func (m *MemAdmins) AddPermission(_ context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error) {
	return m.mutatePermissions(userID, func(a *models.Admin) bool { return a.AddPermission(permission) })
}

// RemovePermission revokes permission from an active record.
func (m *MemAdmins) RemovePermission(_ context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error) {
	return m.mutatePermissions(userID, func(a *models.Admin) bool { return a.RemovePermission(permission) })
}

func (m *MemAdmins) mutatePermissions(userID uuid.UUID, fn func(*models.Admin) bool) (*models.Admin, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byUserID[userID]
	if !ok || !stored.IsActive {
		return nil, false, utils.ErrNotFound
	}
	a := cloneAdmin(stored)
	if !fn(a) {
		return a, false, nil
	}
	m.byUserID[userID] = *cloneAdmin(*a)
	return a, true, nil
}

// List filters records by activity and role.
func (m *MemAdmins) List(_ context.Context, filter models.AdminFilter) ([]*models.Admin, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Admin
	for _, a := range m.byUserID {
		if !filter.IncludeInactive && !a.IsActive {
			continue
		}
		if filter.Role != "" && a.Role != filter.Role {
			continue
		}
		if filter.ExcludeRole != "" && a.Role == filter.ExcludeRole {
			continue
		}
		out = append(out, cloneAdmin(a))
	}
	return out, len(out), nil
}

// MemAudit is an append-only audit log; List returns newest first.
type MemAudit struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry

	// Now stamps appended entries; time.Now when nil.
	Now func() time.Time
}

// Append stores entry, stamping CreatedAt.
func (m *MemAudit) Append(_ context.Context, entry *models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Now != nil {
		entry.CreatedAt = m.Now()
	} else {
		entry.CreatedAt = time.Now()
	}
	m.entries = append(m.entries, *entry)
	return nil
}

// List returns matching entries, newest first, and the number of matches.
func (m *MemAudit) List(_ context.Context, filter models.AuditFilter) ([]*models.AuditLogEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.AuditLogEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if matchAudit(e, filter) {
			out = append(out, &e)
		}
	}
	total := len(out)
	out = out[min(filter.Offset, total):]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// CountByAction counts matching entries per action.
func (m *MemAudit) CountByAction(_ context.Context, filter models.AuditFilter) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, e := range m.entries {
		if matchAudit(e, filter) {
			counts[e.Action]++
		}
	}
	return counts, nil
}

func matchAudit(e models.AuditLogEntry, filter models.AuditFilter) bool {
	if filter.Action != "" && e.Action != filter.Action {
		return false
	}
	if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
		return false
	}
	if filter.Since != nil && e.CreatedAt.Before(*filter.Since) {
		return false
	}
	return true
}

// Actions returns the action of every entry in append order.
func (m *MemAudit) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// SentMail is one message handed to a RecordingNotifier.
type SentMail struct {
	Template  notify.Template
	Recipient string
	Params    map[string]string
}

// RecordingNotifier records messages instead of delivering them.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []SentMail
}

// Send records the message.
func (n *RecordingNotifier) Send(_ context.Context, tmpl notify.Template, recipient string, params map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, SentMail{Template: tmpl, Recipient: recipient, Params: params})
	return nil
}

// LastToken returns the token embedded in the link of the most recent
// message of tmpl.
func (n *RecordingNotifier) LastToken(t testing.TB, tmpl notify.Template) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Template != tmpl {
			continue
		}
		u, err := url.Parse(n.sent[i].Params["link"])
		require.NoError(t, err)
		return u.Query().Get("token")
	}
	t.Fatalf("no %s email sent", tmpl)
	return ""
}

// Count returns how many messages of tmpl were sent.
func (n *RecordingNotifier) Count(tmpl notify.Template) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Template == tmpl {
			c++
		}
	}
	return c
}

// FakeClock is a manually advanced clock.
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// StrongPassword satisfies the default policy and is the password of every
// seeded user.
const StrongPassword = "Weak1!ab"

// Env wires the services to in-memory stores, an in-process cache and a
// manual clock.
type Env struct {
	Clock  *FakeClock
	Cache  *cache.MemoryStore
	Users  *MemUsers
	Admins *MemAdmins
	Audit  *MemAudit
	Mail   *RecordingNotifier
	Hasher *auth.Argon2idHasher
	Tokens *auth.TokenService
	Limits *auth.RateLimiter
	Deps   service.AuthDeps

	Auth  *service.AuthService
	Admin *service.AdminService
	User  *service.UserService
}

// NewEnv builds an Env. The login rule allows 3 attempts per minute and
// password reset 3 per 15 minutes; other rules are generous.
func NewEnv(t testing.TB) *Env {
	t.Helper()

	clk := &FakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryStore(cache.WithClock(clk.Now))

	hasher := auth.NewArgon2idHasher(config.HasherConfig{MemoryKiB: 1024, Time: 1, Threads: 1, KeyLength: 32})
	tokens := auth.NewTokenService(config.AuthConfig{
		JWTSecret:  "service-test-secret-service-test-secret",
		Issuer:     "gtd_auth_test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   30 * time.Minute,
		VerifyTTL:  24 * time.Hour,
	}, store, auth.WithClock(clk.Now))
	limiter := auth.NewRateLimiter(store, map[auth.RateAction]auth.Rule{
		auth.RateLogin:         {Limit: 3, Window: time.Minute},
		auth.RateLoginIP:       {Limit: 100, Window: time.Minute},
		auth.RateRegister:      {Limit: 100, Window: time.Hour},
		auth.RatePasswordReset: {Limit: 3, Window: 15 * time.Minute},
		auth.RateRefresh:       {Limit: 100, Window: time.Minute},
		auth.RateInvalidAuth:   {Limit: 5, Window: time.Minute},
	}, auth.WithClock(clk.Now))

	env := &Env{
		Clock:  clk,
		Cache:  store,
		Users:  NewMemUsers(),
		Admins: NewMemAdmins(),
		Audit:  &MemAudit{Now: clk.Now},
		Mail:   &RecordingNotifier{},
		Hasher: hasher,
		Tokens: tokens,
		Limits: limiter,
	}

	deps := service.AuthDeps{
		Users:  env.Users,
		Admins: env.Admins,
		Audit:  env.Audit,
		Policy: auth.NewPasswordPolicy(config.PasswordConfig{
			MinLength: 8, MaxLength: 128,
			RequireUpper: true, RequireLower: true, RequireDigit: true, RequireSymbol: true,
			Denylist: config.DefaultDenylist,
		}),
		Hasher:      hasher,
		Tokens:      tokens,
		Limiter:     limiter,
		Permissions: auth.NewPermissionEngine(),
		Notifier:    env.Mail,
		Cache:       store,
		FrontendURL: "https://app.example.com/",
		Now:         clk.Now,
	}
	env.Deps = deps
	env.Auth = service.NewAuthService(deps)
	env.Admin = service.NewAdminService(deps)
	env.User = service.NewUserService(deps)
	return env
}

// SeedUser stores an active user with password StrongPassword.
func (e *Env) SeedUser(t testing.TB, username string) *models.User {
	t.Helper()
	hash, err := e.Hasher.Hash(StrongPassword)
	require.NoError(t, err)
	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        strings.ToLower(username) + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
	}
	require.NoError(t, e.Users.Create(context.Background(), u))
	return u
}

// SeedAdmin stores an active admin record for user and returns the
// resulting principal.
func (e *Env) SeedAdmin(t testing.TB, user *models.User, role models.Role, perms ...string) *auth.Principal {
	t.Helper()
	a := &models.Admin{
		ID: uuid.New(), UserID: user.ID, Role: role,
		Permissions: perms, AssignedAt: time.Now(), IsActive: true,
	}
	require.NoError(t, e.Admins.Create(context.Background(), a))
	return &auth.Principal{User: user, Admin: a}
}

// Login logs identity in with StrongPassword and fails the test on error.
func (e *Env) Login(t testing.TB, identity string) *service.LoginResult {
	t.Helper()
	res, err := e.Auth.Login(context.Background(), identity, StrongPassword, Meta)
	require.NoError(t, err)
	return res
}

// Meta is the request metadata used by Env helpers.
var Meta = service.RequestMeta{IP: "10.0.0.1", UserAgent: "go-test"}
