package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the credential record behind every session.
//
// RefreshTokenHash holds the digest of the single refresh token currently
// accepted for the user; nil means no active session.
type User struct {
	ID               string
	Name             string
	Email            string
	PasswordHash     string
	Role             Role
	Status           UserStatus
	RefreshTokenHash *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasActiveSession reports whether a refresh token is currently stored.
func (u *User) HasActiveSession() bool {
	return u != nil && u.RefreshTokenHash != nil && *u.RefreshTokenHash != ""
}
