package model

import "time"

// User is a person who can be enrolled on the fingerprint sensor.
type User struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	UserID   string `gorm:"uniqueIndex;size:36;not null" json:"userId"`
	SlotID   *int   `gorm:"uniqueIndex" json:"id"` // Sensor template position, nil when not enrolled
	Name     string `gorm:"size:256;not null" json:"name"`
	MSV      string `gorm:"column:msv;size:64;index" json:"msv"`
	IsActive bool   `gorm:"not null;default:true" json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasSlot reports whether the user currently owns a sensor slot.
func (u User) HasSlot() bool {
	return u.SlotID != nil && *u.SlotID > 0
}
