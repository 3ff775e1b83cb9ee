package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/gtd_auth/internal/database"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

const userColumns = `id, username, email, password_hash, is_active, email_verified,
	token_version, last_login_at, created_at, updated_at`

// UserRepository persists users in PostgreSQL. Uniqueness of username and
// email is enforced by the users_username_key and users_email_key constraints.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user with id or utils.ErrNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFoundOr("get user", err)
	}
	return &user, nil
}

// GetByIdentity looks a user up by email when identity contains an @, and by
// username otherwise.
func (r *UserRepository) GetByIdentity(ctx context.Context, identity string) (*models.User, error) {
	column := "username"
	if strings.Contains(identity, "@") {
		column = "email"
	}

	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, identity)
	if err != nil {
		return nil, notFoundOr("get user by identity", err)
	}
	return &user, nil
}

// Create inserts user. A unique constraint violation is reported as
// utils.ErrDuplicateIdentity.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, email_verified, token_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.IsActive, user.EmailVerified, user.TokenVersion,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if database.IsUniqueViolation(err, "") {
		return utils.ErrDuplicateIdentity
	}
	return utils.Unavailable("create user", err)
}

// List returns a page of users matching filter, newest first, and the total
// number of matches.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error) {
	var conds []string
	var args []any
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.EmailVerified != nil {
		args = append(args, *filter.EmailVerified)
		conds = append(conds, fmt.Sprintf("email_verified = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		conds = append(conds, fmt.Sprintf("(username ILIKE $%[1]d OR email ILIKE $%[1]d)", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return nil, 0, utils.Unavailable("count users", err)
	}

	limit, offset := page(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args))

	users := []*models.User{}
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, utils.Unavailable("list users", err)
	}
	return users, total, nil
}

// RecordLogin sets last_login_at and nothing else.
func (r *UserRepository) RecordLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	return affected("record login", res, err)
}

// UpdatePasswordHash swaps the hash only while the stored one is oldHash.
func (r *UserRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $3, updated_at = NOW()
		WHERE id = $1 AND password_hash = $2
	`, id, oldHash, newHash)
	return applied("update password hash", res, err)
}

// SetPassword stores hash and bumps token_version in one statement, guarded
// by the version the caller read.
func (r *UserRepository) SetPassword(ctx context.Context, id uuid.UUID, version int, hash string) (int, bool, error) {
	var next int
	err := r.db.QueryRowxContext(ctx, `
		UPDATE users SET password_hash = $3, token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 AND token_version = $2 AND is_active
		RETURNING token_version
	`, id, version, hash).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, utils.Unavailable("set password", err)
	}
	return next, true, nil
}

// UpdateProfile writes username and email. email_verified survives only when
// the email is unchanged.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			username = $2,
			email = $3,
			email_verified = email_verified AND email = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING email_verified, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, user.ID, user.Username, user.Email).
		Scan(&user.EmailVerified, &user.UpdatedAt)
	if database.IsUniqueViolation(err, "") {
		return utils.ErrDuplicateIdentity
	}
	return notFoundOr("update user profile", err)
}

// MarkEmailVerified verifies the address only if it is still the user's.
func (r *UserRepository) MarkEmailVerified(ctx context.Context, id uuid.UUID, email string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email_verified = TRUE, updated_at = NOW()
		WHERE id = $1 AND email = $2
	`, id, email)
	return applied("mark email verified", res, err)
}

// Deactivate clears is_active and bumps token_version of an active user.
func (r *UserRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET is_active = FALSE, token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1 AND is_active
	`, id)
	return applied("deactivate user", res, err)
}

// applied reports whether a conditional UPDATE matched a row.
func applied(op string, res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, utils.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, utils.Unavailable(op, err)
	}
	return n > 0, nil
}

// affected is applied for unconditional updates: no row means no such id.
func affected(op string, res sql.Result, err error) error {
	ok, err := applied(op, res, err)
	if err == nil && !ok {
		return utils.ErrNotFound
	}
	return err
}

// escapeLike escapes the LIKE metacharacters of s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// notFoundOr maps sql.ErrNoRows to utils.ErrNotFound and wraps anything else
// as an infrastructure failure.
func notFoundOr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return utils.ErrNotFound
	}
	return utils.Unavailable(op, err)
}
