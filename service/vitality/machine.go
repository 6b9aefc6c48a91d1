package vitality

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/dphilippe/vitality-server/service/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Guard violations are rejected, never thrown: handlers translate these to
// 4xx responses and the state is left untouched.
var (
	ErrValidation         = errors.New("validation failed")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
)

// Notifier delivers a freshly appended notification to the practitioner
// side. Delivery is best-effort; the database row is the durable record.
type Notifier interface {
	NotifyPractitioner(n *models.Notification)
}

// Machine owns the per-patient appointment funnel and the payment gates that
// unlock its steps. It is the only writer of VitalityState and
// AppointmentStatus.
type Machine struct {
	db          *gorm.DB
	notifier    Notifier
	ctx         context.Context
	settleDelay time.Duration
	wg          sync.WaitGroup
}

// DefaultSettleDelay approximates the card processor's confirmation lag
// before the iris-scan unlock lands.
const DefaultSettleDelay = 300 * time.Millisecond

// NewMachine wires a state machine over the given database. ctx bounds all
// in-flight settlement workers: once it is cancelled no delayed unlock will
// touch the database again.
func NewMachine(ctx context.Context, db *gorm.DB, notifier Notifier, settleDelay time.Duration) *Machine {
	if settleDelay <= 0 {
		settleDelay = DefaultSettleDelay
	}
	return &Machine{
		db:          db,
		notifier:    notifier,
		ctx:         ctx,
		settleDelay: settleDelay,
	}
}

// Wait blocks until all in-flight settlement workers have finished.
func (m *Machine) Wait() {
	m.wg.Wait()
}

func (m *Machine) patient(tx *gorm.DB, patientID uint) (*models.Patient, error) {
	var patient models.Patient
	if err := tx.First(&patient, patientID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &patient, nil
}

func (m *Machine) advance(tx *gorm.DB, patient *models.Patient, to models.VitalityState) error {
	if !patient.VitalityState.Forward(to) {
		metrics.RejectedTransitions.Inc()
		log.Printf("Rejected transition for patient %d: %s -> %s", patient.ID, patient.VitalityState, to)
		return ErrPreconditionFailed
	}
	patient.VitalityState = to
	if err := tx.Model(patient).Update("vitality_state", to).Error; err != nil {
		return err
	}
	metrics.StateTransitions.WithLabelValues(string(to)).Inc()
	return nil
}

// OpenGate creates a payment gate in the form sub-state. An existing gate is
// replaced; an unknown kind is rejected.
func (m *Machine) OpenGate(patientID uint, kind models.GateKind, title, description string) (*models.PaymentGate, error) {
	price, ok := models.GatePrice(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown gate kind %q", ErrValidation, kind)
	}

	if _, err := m.patient(m.db, patientID); err != nil {
		return nil, err
	}

	gate := models.PaymentGate{
		PatientID:   patientID,
		Kind:        kind,
		Title:       title,
		Description: description,
		Amount:      price,
		Status:      models.GateStatusForm,
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		// Hard delete: the unique index on patient_id must be free for
		// the replacement row.
		if err := tx.Unscoped().Where("patient_id = ?", patientID).Delete(&models.PaymentGate{}).Error; err != nil {
			return err
		}
		return tx.Create(&gate).Error
	})
	if err != nil {
		return nil, err
	}
	return &gate, nil
}

// SubmitGate moves the patient's open gate to pending and runs the
// completion effect for its kind. Card details are not validated; payment
// always succeeds.
func (m *Machine) SubmitGate(patientID uint) (*models.PaymentGate, error) {
	var gate models.PaymentGate

	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patientID).First(&gate).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if gate.Status != models.GateStatusForm {
			return ErrPreconditionFailed
		}

		patient, err := m.patient(tx, patientID)
		if err != nil {
			return err
		}

		gate.Status = models.GateStatusPending
		switch gate.Kind {
		case models.GateIrisScanUnlock:
			// The gate itself reads as approved right away; only the
			// state transition waits for settlement.
			gate.Paid = true
		case models.GateVisitBooking:
			if err := m.completeVisitBooking(tx, patient, &gate); err != nil {
				return err
			}
		}
		return tx.Save(&gate).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.GateSubmissions.WithLabelValues(string(gate.Kind)).Inc()
	if gate.Kind == models.GateIrisScanUnlock {
		m.scheduleIrisUnlock(patientID)
	}
	return &gate, nil
}

// completeVisitBooking marks the visit fee paid, flips the booking sub-flow
// to pending and appends exactly one practitioner notification. VitalityState
// is not touched.
func (m *Machine) completeVisitBooking(tx *gorm.DB, patient *models.Patient, gate *models.PaymentGate) error {
	if patient.SelectedBookingDay == nil {
		return fmt.Errorf("%w: no booking day selected", ErrPreconditionFailed)
	}

	gate.Paid = true
	updates := map[string]interface{}{
		"visit_paid":         true,
		"appointment_status": models.AppointmentPending,
	}
	if err := tx.Model(patient).Updates(updates).Error; err != nil {
		return err
	}

	notification := models.Notification{
		UUID:      uuid.New().String(),
		Type:      models.NotificationAppointmentPending,
		PatientID: patient.ID,
		FileID:    utils.GenerateFileID(patient.FullName, patient.CountryCode, time.Now()),
	}
	if err := tx.Create(&notification).Error; err != nil {
		return err
	}

	if m.notifier != nil {
		m.notifier.NotifyPractitioner(&notification)
	}
	return nil
}

// scheduleIrisUnlock advances locked -> camera after the settlement delay.
// The worker is cancelled with the machine's context so a torn-down server
// never mutates state late.
func (m *Machine) scheduleIrisUnlock(patientID uint) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		timer := time.NewTimer(m.settleDelay)
		defer timer.Stop()

		select {
		case <-m.ctx.Done():
			return
		case <-timer.C:
		}

		err := m.db.Transaction(func(tx *gorm.DB) error {
			patient, err := m.patient(tx, patientID)
			if err != nil {
				return err
			}
			if patient.VitalityState != models.StateLocked {
				return ErrPreconditionFailed
			}
			return m.advance(tx, patient, models.StateCamera)
		})
		if err != nil && !errors.Is(err, ErrPreconditionFailed) {
			log.Printf("Iris unlock settlement failed for patient %d: %v", patientID, err)
		}
	}()
}

// CloseGate clears the patient's gate regardless of sub-state. Idempotent.
func (m *Machine) CloseGate(patientID uint) error {
	return m.db.Unscoped().Where("patient_id = ?", patientID).Delete(&models.PaymentGate{}).Error
}

// Gate returns the patient's open gate, if any.
func (m *Machine) Gate(patientID uint) (*models.PaymentGate, error) {
	var gate models.PaymentGate
	if err := m.db.Where("patient_id = ?", patientID).First(&gate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &gate, nil
}

// StartCapture begins (or restarts) an iris capture session.
func (m *Machine) StartCapture(patientID uint) (*models.CaptureSession, error) {
	patient, err := m.patient(m.db, patientID)
	if err != nil {
		return nil, err
	}
	if patient.VitalityState != models.StateCamera {
		return nil, ErrPreconditionFailed
	}

	session := models.CaptureSession{
		PatientID: patientID,
		StartedAt: time.Now(),
	}
	err = m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("patient_id = ?", patientID).Delete(&models.CaptureSession{}).Error; err != nil {
			return err
		}
		return tx.Create(&session).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CaptureProgress reports the current progress of the patient's capture.
func (m *Machine) CaptureProgress(patientID uint) (int, error) {
	var session models.CaptureSession
	if err := m.db.Where("patient_id = ?", patientID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return session.Progress(time.Now()), nil
}

// CompleteCapture fires the capture-complete event. Guard: progress must
// have reached 100.
func (m *Machine) CompleteCapture(patientID uint) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		patient, err := m.patient(tx, patientID)
		if err != nil {
			return err
		}
		if patient.VitalityState != models.StateCamera {
			return ErrPreconditionFailed
		}

		var session models.CaptureSession
		if err := tx.Where("patient_id = ?", patientID).First(&session).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPreconditionFailed
			}
			return err
		}
		if session.Progress(time.Now()) < 100 {
			return ErrPreconditionFailed
		}
		session.Completed = true
		if err := tx.Save(&session).Error; err != nil {
			return err
		}

		deadline := time.Now().Add(models.ReviewSLA)
		if err := tx.Model(patient).Update("review_deadline", deadline).Error; err != nil {
			return err
		}
		return m.advance(tx, patient, models.StateReview)
	})
}

// SelectBookingDay records the patient's chosen day. Re-selectable until the
// visit gate is submitted.
func (m *Machine) SelectBookingDay(patientID uint, day int) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		patient, err := m.patient(tx, patientID)
		if err != nil {
			return err
		}
		if patient.VitalityState != models.StateReady || patient.VisitPaid {
			return ErrPreconditionFailed
		}

		var blocked []models.BlockedDay
		if err := tx.Find(&blocked).Error; err != nil {
			return err
		}
		window := models.BookingWindow(time.Now(), models.BlockedSet(blocked))
		available := false
		for _, d := range window {
			if d.Day == day && d.Available {
				available = true
				break
			}
		}
		if !available {
			return fmt.Errorf("%w: day %d not available", ErrValidation, day)
		}
		return tx.Model(patient).Update("selected_booking_day", day).Error
	})
}

// SendReady is the practitioner's review-complete signal (review -> ready).
func (m *Machine) SendReady(patientID uint) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		patient, err := m.patient(tx, patientID)
		if err != nil {
			return err
		}
		if patient.VitalityState != models.StateReview {
			return ErrPreconditionFailed
		}
		return m.advance(tx, patient, models.StateReady)
	})
}

// ConfirmAppointment is the practitioner confirming the booked appointment:
// the booking sub-flow becomes confirmed and the full dashboard unlocks.
func (m *Machine) ConfirmAppointment(patientID uint) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		patient, err := m.patient(tx, patientID)
		if err != nil {
			return err
		}
		if patient.AppointmentStatus != models.AppointmentPending {
			return ErrPreconditionFailed
		}
		if err := tx.Model(patient).Update("appointment_status", models.AppointmentConfirmed).Error; err != nil {
			return err
		}
		patient.AppointmentStatus = models.AppointmentConfirmed
		return m.advance(tx, patient, models.StateDashboard)
	})
}
