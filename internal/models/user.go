package models

import "time"

// User roles.
const (
	// RoleUser is a regular participant.
	RoleUser = "USER"
	// RoleAdmin is an administrator.
	RoleAdmin = "ADMIN"
)

// User statuses.
const (
	// StatusPending marks a freshly registered, not yet approved account.
	StatusPending = "PENDING"
	// StatusApproved marks an account cleared to participate.
	StatusApproved = "APPROVED"
	// StatusSuspended marks a locked-out account.
	StatusSuspended = "SUSPENDED"
)

// User is a participant account.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username    string `gorm:"type:text;not null;uniqueIndex"` // Normalized login name.
	DisplayName string `gorm:"type:text;not null"`             // Presentation name.

	PasswordHash        string `gorm:"type:text"`                      // bcrypt hash; empty means no password set.
	ForcePasswordChange bool   `gorm:"not null;default:false"`         // Set after an admin password reset.
	Role                string `gorm:"type:text;not null;default:USER"`    // RoleUser or RoleAdmin.
	Status              string `gorm:"type:text;not null;default:PENDING"` // StatusPending, StatusApproved or StatusSuspended.

	Credentials []Credential `gorm:"foreignKey:UserID"` // Registered passkeys.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// HasPassword reports whether password login is enabled for the user.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
