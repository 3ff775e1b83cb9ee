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
	"github.com/lib/pq"

	"github.com/GTDGit/gtd_auth/internal/database"
	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

const adminColumns = `id, user_id, role, permissions, assigned_by, assigned_at,
	notes, is_active, created_at, updated_at`

// adminRow mirrors the admins table; permissions is a TEXT[] column.
type adminRow struct {
	ID          uuid.UUID      `db:"id"`
	UserID      uuid.UUID      `db:"user_id"`
	Role        string         `db:"role"`
	Permissions pq.StringArray `db:"permissions"`
	AssignedBy  *uuid.UUID     `db:"assigned_by"`
	AssignedAt  time.Time      `db:"assigned_at"`
	Notes       string         `db:"notes"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (row *adminRow) toModel() *models.Admin {
	perms := []string(row.Permissions)
	if perms == nil {
		perms = []string{}
	}
	return &models.Admin{
		ID:          row.ID,
		UserID:      row.UserID,
		Role:        models.Role(row.Role),
		Permissions: perms,
		AssignedBy:  row.AssignedBy,
		AssignedAt:  row.AssignedAt,
		Notes:       row.Notes,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// AdminRepository persists admin records. Each user has at most one row,
// enforced by admins_user_id_key.
type AdminRepository struct {
	db *sqlx.DB
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db *sqlx.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

// GetByUserID returns the admin record of a user, active or not, or
// utils.ErrNotFound.
func (r *AdminRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Admin, error) {
	var row adminRow
	err := r.db.GetContext(ctx, &row, `SELECT `+adminColumns+` FROM admins WHERE user_id = $1`, userID)
	if err != nil {
		return nil, notFoundOr("get admin", err)
	}
	return row.toModel(), nil
}

// Create inserts admin. A second record for the same user yields
// utils.ErrAlreadyAdmin; a missing user yields utils.ErrNotFound.
func (r *AdminRepository) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (id, user_id, role, permissions, assigned_by, assigned_at, notes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		admin.ID, admin.UserID, string(admin.Role), pq.Array(admin.Permissions),
		admin.AssignedBy, admin.AssignedAt, admin.Notes, admin.IsActive,
	).Scan(&admin.CreatedAt, &admin.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err, "admins_user_id_key"):
		return utils.ErrAlreadyAdmin
	case database.IsForeignKeyViolation(err):
		return utils.ErrNotFound
	}
	return utils.Unavailable("create admin", err)
}

// Update writes role, permissions, assignment and activity of admin.
func (r *AdminRepository) Update(ctx context.Context, admin *models.Admin) error {
	query := `
		UPDATE admins SET
			role = $2,
			permissions = $3,
			assigned_by = $4,
			assigned_at = $5,
			notes = $6,
			is_active = $7,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		admin.ID, string(admin.Role), pq.Array(admin.Permissions),
		admin.AssignedBy, admin.AssignedAt, admin.Notes, admin.IsActive,
	).Scan(&admin.UpdatedAt)
	return notFoundOr("update admin", err)
}

// Reactivate overwrites an inactive record. A record that is already active
// is left alone and reported as false.
func (r *AdminRepository) Reactivate(ctx context.Context, admin *models.Admin) (bool, error) {
	query := `
		UPDATE admins SET
			role = $2,
			permissions = $3,
			assigned_by = $4,
			assigned_at = $5,
			notes = $6,
			is_active = TRUE,
			updated_at = NOW()
		WHERE id = $1 AND NOT is_active
		RETURNING updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		admin.ID, string(admin.Role), pq.Array(admin.Permissions),
		admin.AssignedBy, admin.AssignedAt, admin.Notes,
	).Scan(&admin.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, utils.Unavailable("reactivate admin", err)
	}
	admin.IsActive = true
	return true, nil
}

// Deactivate clears is_active of the user's record.
func (r *AdminRepository) Deactivate(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admins SET is_active = FALSE, updated_at = NOW()
		WHERE user_id = $1 AND is_active
	`, userID)
	return applied("deactivate admin", res, err)
}

// AddPermission appends permission to the set of an active record, keeping
// it sorted and distinct.
func (r *AdminRepository) AddPermission(ctx context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error) {
	return r.mutatePermissions(ctx, "grant permission", `
		UPDATE admins SET
			permissions = ARRAY(SELECT DISTINCT p FROM unnest(array_append(permissions, $2::text)) AS p ORDER BY p),
			updated_at = NOW()
		WHERE user_id = $1 AND is_active AND NOT ($2::text = ANY(permissions))
		RETURNING `+adminColumns, userID, permission)
}

// RemovePermission drops permission from the set of an active record.
func (r *AdminRepository) RemovePermission(ctx context.Context, userID uuid.UUID, permission string) (*models.Admin, bool, error) {
	return r.mutatePermissions(ctx, "revoke permission", `
		UPDATE admins SET permissions = array_remove(permissions, $2::text), updated_at = NOW()
		WHERE user_id = $1 AND is_active AND $2::text = ANY(permissions)
		RETURNING `+adminColumns, userID, permission)
}

// mutatePermissions runs a guarded permission update. When the guard fails
// the record is re-read to tell "already in that state" from "no active
// record".
func (r *AdminRepository) mutatePermissions(ctx context.Context, op, query string, userID uuid.UUID, permission string) (*models.Admin, bool, error) {
	var row adminRow
	err := r.db.GetContext(ctx, &row, query, userID, permission)
	if err == nil {
		return row.toModel(), true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, utils.Unavailable(op, err)
	}

	admin, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if !admin.IsActive {
		return nil, false, utils.ErrNotFound
	}
	return admin, false, nil
}

// List returns a page of admins matching filter, newest assignment first,
// and the total number of matches.
func (r *AdminRepository) List(ctx context.Context, filter models.AdminFilter) ([]*models.Admin, int, error) {
	var conds []string
	var args []any
	if !filter.IncludeInactive {
		conds = append(conds, "is_active = TRUE")
	}
	if filter.Role != "" {
		args = append(args, string(filter.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.ExcludeRole != "" {
		args = append(args, string(filter.ExcludeRole))
		conds = append(conds, fmt.Sprintf("role <> $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM admins`+where, args...); err != nil {
		return nil, 0, utils.Unavailable("count admins", err)
	}

	limit, offset := page(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM admins%s ORDER BY assigned_at DESC LIMIT $%d OFFSET $%d`,
		adminColumns, where, len(args)-1, len(args))

	var rows []adminRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, utils.Unavailable("list admins", err)
	}

	admins := make([]*models.Admin, 0, len(rows))
	for i := range rows {
		admins = append(admins, rows[i].toModel())
	}
	return admins, total, nil
}

// page clamps limit to [1, 100] (default 20) and offset to >= 0.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
