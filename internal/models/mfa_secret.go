package models

import "time"

// MFASecret stores a user's TOTP seed, encrypted at rest when a key is configured.
type MFASecret struct {
	BaseModel

	UserID     string     `gorm:"size:36;uniqueIndex;not null" json:"user_id"`
	Secret     string     `gorm:"not null" json:"-"`
	Encrypted  bool       `gorm:"not null" json:"-"`
	VerifiedAt *time.Time `json:"verified_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
