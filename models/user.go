package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is the authorization tier of an account.
type Role string

const (
	RoleUser      Role = "user"
	RoleUnlimited Role = "unlimited"
	RoleAdmin     Role = "admin"
)

// UnlimitedStorage marks a ceiling that is never enforced.
const UnlimitedStorage int64 = -1

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleUnlimited, RoleAdmin:
		return true
	}
	return false
}

// BypassesQuota reports whether uploads by this role skip the ceiling check.
func (r Role) BypassesQuota() bool {
	return r == RoleUnlimited || r == RoleAdmin
}

// User is an account. Passwords are stored as bcrypt hashes only.
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Email             string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash      string    `gorm:"size:255;not null" json:"-"`
	Role              Role      `gorm:"size:16;not null;default:user" json:"role"`
	StorageLimitBytes int64     `gorm:"not null" json:"storageLimit"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Files             []File    `json:"-"`
}

// IsUnlimited reports whether the account is exempt from the storage ceiling.
func (u *User) IsUnlimited() bool {
	return u.Role.BypassesQuota() || u.StorageLimitBytes < 0
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// BeforeUpdate ensures the UpdatedAt timestamp is refreshed.
func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}
