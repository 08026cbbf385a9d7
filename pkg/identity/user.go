package identity

import (
	"fmt"
	"strings"
	"time"
)

// UserRole represents the role of a user in the system.
type UserRole string

const (
	// RoleUser is a regular user with access to their own files only.
	RoleUser UserRole = "user"
	// RoleAdmin is an administrator account.
	RoleAdmin UserRole = "admin"
)

// IsValid checks if the role is a valid UserRole.
func (r UserRole) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a registered account.
//
// Credentials are stored as a PBKDF2-SHA256 hash plus a per-user random
// salt; the plaintext password never touches disk. All file and directory
// metadata is keyed by the user ID, so IDs are immutable once assigned.
type User struct {
	// ID is the unique identifier for the user (UUID).
	ID string `json:"id"`

	// Username is the unique human-readable identifier for the user.
	// Uniqueness is case-insensitive.
	Username string `json:"username"`

	// Email is the user's email address.
	Email string `json:"email,omitempty"`

	// Role is the user's role in the system (admin or user).
	Role UserRole `json:"role"`

	// PasswordSalt is the base64-encoded random salt used for key
	// derivation. Always at least SaltLength bytes before encoding.
	PasswordSalt string `json:"passwordSalt"`

	// PasswordHash is the base64-encoded PBKDF2-SHA256 derived key.
	PasswordHash string `json:"passwordHash"`

	// CreatedAt is when the account was registered.
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt is when the account record was last modified.
	UpdatedAt time.Time `json:"updatedAt"`

	// LastLoginAt is when the user last authenticated successfully.
	// Zero if the user has never logged in.
	LastLoginAt time.Time `json:"lastLoginAt,omitempty"`
}

// NormalizeUsername returns the canonical form used for uniqueness checks.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Validate checks if the user record is well formed.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if u.ID == "" {
		return fmt.Errorf("user id is required")
	}
	if u.Role != "" && !u.Role.IsValid() {
		return fmt.Errorf("invalid role %q", u.Role)
	}
	return nil
}

// IsAdmin checks if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
