package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/gtd_auth/internal/models"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

type auditRow struct {
	ID         string     `db:"id"`
	ActorID    *uuid.UUID `db:"actor_id"`
	Action     string     `db:"action"`
	TargetType string     `db:"target_type"`
	TargetID   string     `db:"target_id"`
	IPAddress  string     `db:"ip_address"`
	UserAgent  string     `db:"user_agent"`
	Details    []byte     `db:"details"`
	CreatedAt  time.Time  `db:"created_at"`
}

// AuditLogRepository appends to and reads the audit_logs table. Rows are
// never updated or deleted.
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository creates a new AuditLogRepository.
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts entry.
func (r *AuditLogRepository) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	// JSONB is sent as text; a nil pointer stores NULL.
	var details *string
	if len(entry.Details) > 0 {
		s := string(entry.Details)
		details = &s
	}

	query := `
		INSERT INTO audit_logs (id, actor_id, action, target_type, target_id, ip_address, user_agent, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID,
		truncate(entry.IPAddress, 45), truncate(entry.UserAgent, 500), details,
	).Scan(&entry.CreatedAt)
	return utils.Unavailable("append audit log", err)
}

// List returns a page of entries matching filter, newest first, and the total
// number of matches.
func (r *AuditLogRepository) List(ctx context.Context, filter models.AuditFilter) ([]*models.AuditLogEntry, int, error) {
	where, args := auditWhere(filter)

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_logs`+where, args...); err != nil {
		return nil, 0, utils.Unavailable("count audit logs", err)
	}

	limit, offset := page(filter.Limit, filter.Offset)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, actor_id, action, target_type, target_id, ip_address, user_agent, details, created_at
		FROM audit_logs%s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, utils.Unavailable("list audit logs", err)
	}

	entries := make([]*models.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &models.AuditLogEntry{
			ID:         row.ID,
			ActorID:    row.ActorID,
			Action:     row.Action,
			TargetType: row.TargetType,
			TargetID:   row.TargetID,
			IPAddress:  row.IPAddress,
			UserAgent:  row.UserAgent,
			Details:    json.RawMessage(row.Details),
			CreatedAt:  row.CreatedAt,
		})
	}
	return entries, total, nil
}

// CountByAction returns per-action entry counts matching filter.
func (r *AuditLogRepository) CountByAction(ctx context.Context, filter models.AuditFilter) (map[string]int, error) {
	where, args := auditWhere(filter)

	var rows []struct {
		Action string `db:"action"`
		Count  int    `db:"count"`
	}
	query := `SELECT action, COUNT(*) AS count FROM audit_logs` + where + ` GROUP BY action`
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, utils.Unavailable("count audit actions", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Action] = row.Count
	}
	return counts, nil
}

func auditWhere(filter models.AuditFilter) (string, []any) {
	var conds []string
	var args []any
	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		conds = append(conds, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
