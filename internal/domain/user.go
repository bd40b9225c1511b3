package domain

import (
	"regexp"
	"time"
)

// Role of a user account.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor || r == RoleAdmin
}

// CanReview reports whether accounts with this role may review analyses.
func (r Role) CanReview() bool {
	return r == RoleDoctor || r == RoleAdmin
}

// User account (users table).
type User struct {
	ID           int64     `db:"id"`
	Username     string    `db:"username"` // unique
	Email        string    `db:"email"`    // unique
	PasswordHash string    `db:"password_hash"`
	Role         Role      `db:"role"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

// ValidUsername enforces the 3..64 char [a-zA-Z0-9_-] account-name rule.
func ValidUsername(username string) bool {
	if len(username) < 3 || len(username) > 64 {
		return false
	}
	return usernameRe.MatchString(username)
}

// ValidEmail checks the address shape, not deliverability.
func ValidEmail(email string) bool {
	return len(email) <= 120 && emailRe.MatchString(email)
}
