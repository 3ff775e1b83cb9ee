package auth

import (
	"github.com/google/uuid"

	"github.com/GTDGit/gtd_auth/internal/models"
)

// Principal is the authenticated identity a request acts as.
type Principal struct {
	User   *models.User
	Admin  *models.Admin
	Claims *Claims
}

// UserID returns the principal's user id, or uuid.Nil.
func (p *Principal) UserID() uuid.UUID {
	if p == nil || p.User == nil {
		return uuid.Nil
	}
	return p.User.ID
}

// ActiveAdmin returns the admin record if present and active.
func (p *Principal) ActiveAdmin() *models.Admin {
	if p == nil || p.Admin == nil || !p.Admin.IsActive {
		return nil
	}
	return p.Admin
}

// IsSuperuser is derived from an active superadmin record; there is no
// separately stored flag.
func (p *Principal) IsSuperuser() bool {
	a := p.ActiveAdmin()
	return a != nil && a.Role == models.RoleSuperadmin
}

// Is reports whether the principal is user id.
func (p *Principal) Is(id uuid.UUID) bool {
	return id != uuid.Nil && p.UserID() == id
}
