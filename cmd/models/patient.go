package models

import (
	"time"

	"gorm.io/gorm"
)

type Patient struct {
	gorm.Model
	FullName      string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	CountryCode   string `gorm:"column:country_code;size:10;not null;default:'+961'" json:"country_code"`
	Phone         string `gorm:"column:phone;size:20;not null;uniqueIndex" json:"phone"`
	PhoneVerified bool   `gorm:"column:phone_verified;default:false" json:"phone_verified"`
	Tier          string `gorm:"column:tier;size:20;not null;default:'Bronze'" json:"tier"`

	VitalityState      VitalityState     `gorm:"column:vitality_state;size:20;not null;default:'locked'" json:"vitality_state"`
	AppointmentStatus  AppointmentStatus `gorm:"column:appointment_status;size:20;not null;default:'none'" json:"appointment_status"`
	SelectedBookingDay *int              `gorm:"column:selected_booking_day" json:"selected_booking_day,omitempty"`
	VisitPaid          bool              `gorm:"column:visit_paid;default:false" json:"visit_paid"`
	ReviewDeadline     *time.Time        `gorm:"column:review_deadline" json:"review_deadline,omitempty"`

	Gate    *PaymentGate      `gorm:"foreignKey:PatientID" json:"gate,omitempty"`
	Program *TreatmentProgram `gorm:"foreignKey:PatientID" json:"program,omitempty"`
}

type Practitioner struct {
	gorm.Model
	FullName     string `gorm:"column:full_name;size:255;not null" json:"full_name"`
	Email        string `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string `gorm:"column:password_hash;size:255;not null" json:"-"`
}

func (Practitioner) TableName() string {
	return "practitioners"
}
