package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Audit actions written by the services.
const (
	AuditUserRegistered    = "USER_REGISTERED"
	AuditLoginSuccess      = "LOGIN_SUCCESS"
	AuditLoginFailed       = "LOGIN_FAILED"
	AuditLogout            = "LOGOUT"
	AuditTokenRefreshed    = "TOKEN_REFRESHED"
	AuditRefreshReplayed   = "REFRESH_REPLAYED"
	AuditResetRequested    = "PASSWORD_RESET_REQUESTED"
	AuditPasswordReset     = "PASSWORD_RESET"
	AuditPasswordChanged   = "PASSWORD_CHANGED"
	AuditEmailVerified     = "EMAIL_VERIFIED"
	AuditUserUpdated       = "USER_UPDATED"
	AuditUserDeactivated   = "USER_DEACTIVATED"
	AuditAdminPromoted     = "ADMIN_PROMOTED"
	AuditAdminDemoted      = "ADMIN_DEMOTED"
	AuditPermissionGranted = "PERMISSION_GRANTED"
	AuditPermissionRevoked = "PERMISSION_REVOKED"
)

// Audit target types.
const (
	TargetUser  = "User"
	TargetAdmin = "Admin"
)

// AuditLogEntry is an append-only record of an action.
type AuditLogEntry struct {
	ID         string          `db:"id" json:"id"`
	ActorID    *uuid.UUID      `db:"actor_id" json:"actorId,omitempty"`
	Action     string          `db:"action" json:"action"`
	TargetType string          `db:"target_type" json:"targetType"`
	TargetID   string          `db:"target_id" json:"targetId,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ipAddress,omitempty"`
	UserAgent  string          `db:"user_agent" json:"userAgent,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	ActorID *uuid.UUID
	Action  string
	Since   *time.Time
	Offset  int
	Limit   int
}

// AdminFilter narrows an admin listing.
type AdminFilter struct {
	Role            Role
	ExcludeRole     Role
	IncludeInactive bool
	Offset          int
	Limit           int
}
