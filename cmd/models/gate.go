package models

import "gorm.io/gorm"

// GateKind identifies which capability a payment gate unlocks. The kind, not
// the amount, drives the completion effect.
type GateKind string

const (
	GateIrisScanUnlock GateKind = "iris_scan_unlock"
	GateVisitBooking   GateKind = "visit_booking"
)

const (
	IrisScanFee     = 250.0
	VisitBookingFee = 150.0
)

// GatePrice returns the fixed fee for a gate kind.
func GatePrice(kind GateKind) (float64, bool) {
	switch kind {
	case GateIrisScanUnlock:
		return IrisScanFee, true
	case GateVisitBooking:
		return VisitBookingFee, true
	}
	return 0, false
}

const (
	GateStatusForm    = "form"
	GateStatusPending = "pending"
)

// PaymentGate is the single pending authorization blocking a capability.
// At most one per patient; opening a new gate replaces the existing one.
type PaymentGate struct {
	gorm.Model
	PatientID   uint     `gorm:"column:patient_id;not null;uniqueIndex" json:"patient_id"`
	Kind        GateKind `gorm:"column:kind;size:50;not null" json:"kind"`
	Title       string   `gorm:"column:title;size:255;not null" json:"title"`
	Description string   `gorm:"column:description;type:text" json:"description"`
	Amount      float64  `gorm:"column:amount;not null" json:"amount"`
	Status      string   `gorm:"column:status;size:20;not null;default:'form'" json:"status"`
	Paid        bool     `gorm:"column:paid;default:false" json:"paid"`
}
