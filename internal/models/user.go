package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	Username      string     `db:"username" json:"username"`
	Email         string     `db:"email" json:"email"`
	PasswordHash  string     `db:"password_hash" json:"-"`
	IsActive      bool       `db:"is_active" json:"isActive"`
	EmailVerified bool       `db:"email_verified" json:"emailVerified"`
	TokenVersion  int        `db:"token_version" json:"-"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

// UserFilter narrows a user listing. Search matches username or email
// case-insensitively.
type UserFilter struct {
	Search        string
	IsActive      *bool
	EmailVerified *bool
	Offset        int
	Limit         int
}

// ActivitySummary aggregates a user's audit trail over the last DaysBack
// days.
type ActivitySummary struct {
	User            ActivityUser     `json:"user"`
	DaysBack        int              `json:"daysBack"`
	TotalActions    int              `json:"totalActions"`
	ActionBreakdown map[string]int   `json:"actionBreakdown"`
	RecentActivity  []RecentActivity `json:"recentActivity"`
	GeneratedAt     time.Time        `json:"generatedAt"`
}

// ActivityUser is the account part of an ActivitySummary.
type ActivityUser struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// RecentActivity is one audit entry of an ActivitySummary.
type RecentActivity struct {
	Action     string    `json:"action"`
	TargetType string    `json:"targetType"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
