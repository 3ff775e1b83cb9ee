package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GTDGit/gtd_auth/internal/models"
)

// UserStore persists users. Lookups return utils.ErrNotFound when absent and
// writes return utils.ErrDuplicateIdentity on a uniqueness conflict.
//
// Each write touches only the columns it names, so concurrent requests never
// overwrite each other's changes with a stale copy of the row. Methods that
// report a bool return false when their precondition no longer holds.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByIdentity(ctx context.Context, identity string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)
	Create(ctx context.Context, user *models.User) error

	// RecordLogin sets last_login_at.
	RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	// UpdatePasswordHash replaces the hash only while it still equals
	// oldHash. It is used for rehashing and leaves token_version alone.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error)

	// SetPassword stores hash and increments token_version, provided the
	// user is active and token_version still equals version. It returns the
	// new version.
	SetPassword(ctx context.Context, id uuid.UUID, version int, hash string) (int, bool, error)

	// UpdateProfile writes username and email. email_verified is cleared
	// when the email changes.
	UpdateProfile(ctx context.Context, user *models.User) error

	// MarkEmailVerified sets email_verified while the stored email still
	// equals email.
	MarkEmailVerified(ctx context.Context, id uuid.UUID, email string) (bool, error)

	// Deactivate clears is_active and increments token_version. It reports
	// false when the user was already inactive.
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)
}

// AdminStore persists admin records. Create returns utils.ErrAlreadyAdmin
// when the user already has a record.
type AdminStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Admin, error)
	List(ctx context.Context, filter models.AdminFilter) ([]*models.Admin, int, error)
	Create(ctx context.Context, admin *models.Admin) error

	// Update writes every column of admin unconditionally.
	Update(ctx context.Context, admin *models.Admin) error

	// Reactivate writes admin over an inactive record. It reports false when
	// the record is active.
	Reactivate(ctx context.Context, admin *models.Admin) (bool, error)

	// Deactivate clears is_active and reports whether the record was active.
	Deactivate(ctx context.Context, userID uuid.UUID) (bool, error)

	// AddPermission and RemovePermission change the permission set of an
	// active record in place. They return the resulting record and whether
	// the set changed, or utils.ErrNotFound when there is no active record.
	AddPermission(ctx context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error)
	RemovePermission(ctx context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error)
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLogEntry, int, error)

	// CountByAction returns the number of entries per action matching
	// filter. Offset and Limit are ignored.
	CountByAction(ctx context.Context, filter models.AuditFilter) (map[string]int, error)
}

// ValueCache stores derived read models with a TTL. Get returns
// cache.ErrCacheMiss for absent keys.
type ValueCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RequestMeta carries the caller's network identity for rate limiting and
// audit entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}
