package models

// Device is a piece of hardware identified by its service tag.
type Device struct {
	BaseModel

	ServiceTag string  `gorm:"size:100;uniqueIndex;not null" json:"service_tag"`
	DeviceType string  `gorm:"size:100;not null;index" json:"device_type"`
	AddedByID  *string `gorm:"size:36;index" json:"added_by_id"`
	AddedBy    *User   `gorm:"foreignKey:AddedByID" json:"added_by,omitempty"`

	Licenses []License `gorm:"foreignKey:DeviceID;constraint:OnDelete:CASCADE" json:"licenses,omitempty"`
}
