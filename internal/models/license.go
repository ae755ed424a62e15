package models

import (
	"math"
	"time"

	"gorm.io/gorm"
)

// License is an entitlement attached to a device with an expiration date.
type License struct {
	BaseModel

	DeviceID       string    `gorm:"size:36;not null;index" json:"device_id"`
	Device         *Device   `gorm:"foreignKey:DeviceID" json:"device,omitempty"`
	LicenseType    string    `gorm:"size:255;not null;index" json:"license_type"`
	ExpirationDate time.Time `gorm:"not null;index" json:"expiration_date"`

	History       []LicenseHistory `gorm:"foreignKey:LicenseID;constraint:OnDelete:CASCADE" json:"-"`
	Notifications []Notification   `gorm:"foreignKey:LicenseID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave stores expiration dates in UTC so range queries compare consistently across drivers.
func (l *License) BeforeSave(tx *gorm.DB) error {
	l.ExpirationDate = l.ExpirationDate.UTC()
	return nil
}

// DaysUntil returns whole days (floored) between now and the expiration date.
func (l *License) DaysUntil(now time.Time) int {
	return int(math.Floor(l.ExpirationDate.Sub(now).Hours() / 24))
}

// LicenseHistoryAction identifies the kind of write captured in license history.
type LicenseHistoryAction string

const (
	LicenseHistoryInsert LicenseHistoryAction = "INSERT"
	LicenseHistoryUpdate LicenseHistoryAction = "UPDATE"
)

// LicenseHistory is an append-only record of license writes.
type LicenseHistory struct {
	BaseModel

	LicenseID string               `gorm:"size:36;not null;index" json:"license_id"`
	DeviceID  string               `gorm:"size:36;not null;index" json:"device_id"`
	Action    LicenseHistoryAction `gorm:"size:16;not null" json:"action"`
	Timestamp time.Time            `gorm:"not null;index" json:"timestamp"`
}

// TableName keeps the singular table name used by existing deployments.
func (LicenseHistory) TableName() string {
	return "license_history"
}
