package model

import "time"

// EventType classifies an attendance log entry.
type EventType string

const (
	EventCheckIn  EventType = "CHECK_IN"
	EventCheckOut EventType = "CHECK_OUT"
)

// AttendanceLog is a single fingerprint scan attributed to a user.
type AttendanceLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_attendance_user_ts,priority:1" json:"-"`
	Timestamp time.Time `gorm:"column:scanned_at;not null;index:idx_attendance_user_ts,priority:2,sort:desc" json:"timestamp"`
	EventType EventType `gorm:"size:16;not null" json:"eventType"`
	DeviceID  string    `gorm:"size:128" json:"deviceId"`
	SlotID    int       `json:"fingerprintId"`
	LoggedAt  time.Time `gorm:"autoCreateTime" json:"loggedAt"`

	// Associations
	User User `gorm:"constraint:OnDelete:CASCADE" json:"user"`
}
