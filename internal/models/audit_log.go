package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog captures a structured change record for an entity.
type AuditLog struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	EntityType string         `gorm:"size:64;not null;index:idx_audit_entity,priority:1" json:"entity_type"`
	EntityID   string         `gorm:"size:36;not null;index:idx_audit_entity,priority:2" json:"entity_id"`
	Action     string         `gorm:"size:32;not null;index" json:"action"`
	Changes    datatypes.JSON `json:"changes"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
	UserID     *string        `gorm:"size:36;index" json:"user_id"`
	IPAddress  string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent  string         `gorm:"size:255" json:"user_agent,omitempty"`
}

// BeforeCreate assigns a time-ordered ID and defaults Timestamp to now.
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		a.ID = id
	}
	if a.Timestamp.IsZero() {
		if tx != nil {
			a.Timestamp = tx.NowFunc()
		} else {
			a.Timestamp = time.Now().UTC()
		}
	}
	return nil
}
