package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is an administrative role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Admin grants a User administrative capabilities. The referenced user is
// owned 1:1; demotion only clears IsActive.
type Admin struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	UserID      uuid.UUID  `db:"user_id" json:"userId"`
	Role        Role       `db:"role" json:"role"`
	Permissions []string   `db:"permissions" json:"permissions"`
	AssignedBy  *uuid.UUID `db:"assigned_by" json:"assignedBy,omitempty"`
	AssignedAt  time.Time  `db:"assigned_at" json:"assignedAt"`
	Notes       string     `db:"notes" json:"notes,omitempty"`
	IsActive    bool       `db:"is_active" json:"isActive"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// HasPermission reports whether p is granted verbatim.
func (a *Admin) HasPermission(p string) bool {
	return slices.Contains(a.Permissions, p)
}

// AddPermission grants p, keeping the set sorted and free of duplicates.
// It reports whether the set changed.
func (a *Admin) AddPermission(p string) bool {
	if a.HasPermission(p) {
		return false
	}
	a.Permissions = append(a.Permissions, p)
	slices.Sort(a.Permissions)
	return true
}

// RemovePermission revokes p and reports whether the set changed.
func (a *Admin) RemovePermission(p string) bool {
	i := slices.Index(a.Permissions, p)
	if i < 0 {
		return false
	}
	a.Permissions = slices.Delete(a.Permissions, i, i+1)
	return true
}
