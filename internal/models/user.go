package models

import "time"

// User is an account that can register devices and receive expiration notices.
type User struct {
	BaseModel

	Email          string  `gorm:"size:255;uniqueIndex;not null" json:"email"`
	HashedPassword string  `gorm:"not null" json:"-"`
	FullName       *string `gorm:"size:255" json:"full_name"`

	IsActive    bool `gorm:"not null" json:"is_active"`
	IsSuperuser bool `gorm:"not null" json:"is_superuser"`

	MFAEnabled bool       `gorm:"not null" json:"mfa_enabled"`
	MFASecret  *MFASecret `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	Devices   []Device   `gorm:"foreignKey:AddedByID;constraint:OnDelete:SET NULL" json:"-"`
	AuditLogs []AuditLog `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`

	LastLoginAt    *time.Time `json:"last_login_at"`
	FailedAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}
