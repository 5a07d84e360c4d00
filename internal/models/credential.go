package models

import (
	"time"

	"gorm.io/datatypes"
)

// Credential is a registered passkey bound to a user. The authenticator
// generates CredentialID; the sign count only ever grows and a regression
// indicates a cloned authenticator.
type Credential struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	CredentialID []byte `gorm:"not null;uniqueIndex"` // Authenticator-generated credential ID.
	PublicKey    []byte `gorm:"not null"`             // COSE public key.
	SignCount    uint32 `gorm:"not null;default:0"`   // Monotonic signature counter.

	DeviceType string         `gorm:"type:text"` // Attachment reported at registration.
	BackedUp   bool           `gorm:"not null;default:false"` // Synced-passkey flag.
	Transports datatypes.JSON `gorm:"type:jsonb"`             // Transport hints, JSON string array.

	DisplayName string `gorm:"type:text;not null"` // User-chosen label.

	UserID uint64 `gorm:"not null;index"`     // Owning user ID.
	User   *User  `gorm:"foreignKey:UserID"`  // Owning user.

	LastUsedAt *time.Time // Last successful login with this passkey.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
