package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const NotificationAppointmentPending = "appointment_pending"

// Notification records a patient-facing event raised for the practitioner's
// attention. Rows are never deleted; the read flag is bookkeeping only, the
// dashboard unread badge is derived from the patient's appointment state.
type Notification struct {
	gorm.Model
	UUID        string     `gorm:"column:uuid;size:36;not null;uniqueIndex" json:"uuid"`
	Type        string     `gorm:"column:type;size:50;not null" json:"type"`
	PatientID   uint       `gorm:"column:patient_id;not null;index" json:"patient_id"`
	FileID      string     `gorm:"column:file_id;size:50;not null" json:"file_id"`
	Read        bool       `gorm:"column:read;default:false" json:"read"`
	DeliveredAt *time.Time `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
}

// RelativeTime renders the record's age the way the dashboard displays it.
func (n *Notification) RelativeTime(now time.Time) string {
	age := now.Sub(n.CreatedAt)
	switch {
	case age < time.Minute:
		return "Just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return n.CreatedAt.Format("Jan 2")
}

// UnreadBadge derives the practitioner dashboard badge from the patient's
// funnel position rather than from notification read flags: a scan awaiting
// review and a submitted booking each light it up.
func UnreadBadge(state VitalityState, status AppointmentStatus) int {
	badge := 0
	if state == StateReview {
		badge++
	}
	if status == AppointmentPending {
		badge++
	}
	return badge
}

// Device is a registered push target for a practitioner or patient client.
type Device struct {
	gorm.Model
	Token      string `gorm:"not null;uniqueIndex:idx_token_user" json:"token"`
	UserID     string `gorm:"not null;index;uniqueIndex:idx_token_user" json:"userId"`
	DeviceType string `gorm:"type:varchar(50)" json:"deviceType"`
	DeviceName string `gorm:"type:varchar(100)" json:"deviceName,omitempty"`
}

// EchoRequest is a practitioner broadcast ("Daily Echo") to all patients.
type EchoRequest struct {
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data,omitempty"`
	UserIDs []string               `json:"userIds,omitempty"`
}

type NotificationHistory struct {
	gorm.Model
	UserID string    `gorm:"index" json:"userId"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
	Data   string    `gorm:"type:text" json:"data,omitempty"`
	Status string    `gorm:"type:varchar(20)" json:"status"`
	SentAt time.Time `json:"sentAt"`
}
