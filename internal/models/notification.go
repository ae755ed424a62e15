package models

import "time"

// Urgency classifies how soon a license expires.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Valid reports whether u is one of the known urgency tiers.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// UrgencyForDays maps days-until-expiry to an urgency tier.
func UrgencyForDays(days int) Urgency {
	switch {
	case days <= 7:
		return UrgencyHigh
	case days <= 14:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Notification records an expiration notice for a license.
type Notification struct {
	BaseModel

	LicenseID        string    `gorm:"size:36;not null;index" json:"license_id"`
	UserID           *string   `gorm:"size:36;index" json:"user_id"`
	User             *User     `gorm:"foreignKey:UserID;constraint:OnDelete:SET NULL" json:"-"`
	Message          string    `gorm:"size:255;not null" json:"message"`
	Urgency          Urgency   `gorm:"size:16;not null;index" json:"urgency"`
	Read             bool      `gorm:"not null;index" json:"read"`
	Sent             bool      `gorm:"not null" json:"sent"`
	NotificationDate time.Time `gorm:"not null;index" json:"notification_date"`
}
