package models

import (
	"time"

	"gorm.io/gorm"
)

// VitalityState tracks a patient's position in the clinical funnel. Transitions
// only ever move forward; there is no cancellation path.
type VitalityState string

const (
	StateLocked    VitalityState = "locked"
	StateCamera    VitalityState = "camera"
	StateReview    VitalityState = "review"
	StateReady     VitalityState = "ready"
	StateDashboard VitalityState = "dashboard"
)

var stateOrder = map[VitalityState]int{
	StateLocked:    0,
	StateCamera:    1,
	StateReview:    2,
	StateReady:     3,
	StateDashboard: 4,
}

// Forward reports whether moving from s to next advances the funnel.
func (s VitalityState) Forward(next VitalityState) bool {
	from, ok := stateOrder[s]
	if !ok {
		return false
	}
	to, ok := stateOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// AppointmentStatus tracks the booking sub-flow independently of VitalityState.
type AppointmentStatus string

const (
	AppointmentNone      AppointmentStatus = "none"
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
)

// ReviewSLA is the display-only countdown shown while a scan awaits review.
const ReviewSLA = 14 * 24 * time.Hour

// CaptureSession records an in-progress iris capture. Progress is derived from
// elapsed time server-side so it is monotone by construction.
type CaptureSession struct {
	gorm.Model
	PatientID uint      `gorm:"column:patient_id;not null;uniqueIndex" json:"patient_id"`
	StartedAt time.Time `gorm:"column:started_at;not null" json:"started_at"`
	Completed bool      `gorm:"column:completed;default:false" json:"completed"`
}

// CaptureWindow is how long a capture takes to reach 100%.
const CaptureWindow = 2 * time.Second

// Progress returns the capture progress at time now, clamped to [0,100].
func (c *CaptureSession) Progress(now time.Time) int {
	if c.Completed {
		return 100
	}
	elapsed := now.Sub(c.StartedAt)
	if elapsed <= 0 {
		return 0
	}
	if elapsed >= CaptureWindow {
		return 100
	}
	return int(elapsed * 100 / CaptureWindow)
}
