package vitality

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db      *gorm.DB
	machine *Machine
}

func NewHandler(db *gorm.DB, machine *Machine) *Handler {
	return &Handler{db: db, machine: machine}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/patients/{id}/vitality", h.authed(h.GetVitality)).Methods("GET")
	router.Handle("/patients/{id}/gates", h.authed(h.OpenGate)).Methods("POST")
	router.Handle("/patients/{id}/gates/submit", h.authed(h.SubmitGate)).Methods("POST")
	router.Handle("/patients/{id}/gates", h.authed(h.CloseGate)).Methods("DELETE")
	router.Handle("/patients/{id}/capture", h.authed(h.StartCapture)).Methods("POST")
	router.Handle("/patients/{id}/capture", h.authed(h.GetCaptureProgress)).Methods("GET")
	router.Handle("/patients/{id}/capture/complete", h.authed(h.CompleteCapture)).Methods("POST")
	router.Handle("/patients/{id}/booking/days", h.authed(h.GetBookingDays)).Methods("GET")
	router.Handle("/patients/{id}/booking/day", h.authed(h.SelectBookingDay)).Methods("POST")
	router.Handle("/patients/{id}/checkup", h.authed(h.GetCheckup)).Methods("GET")
	router.Handle("/patients/{id}/checkup/session", h.authed(h.StartCheckupSession)).Methods("POST")
}

// authed wraps a handler with session auth and an ownership check: a patient
// session may only touch its own record, the practitioner may touch any.
func (h *Handler) authed(fn http.HandlerFunc) http.Handler {
	return utils.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		patientID, err := pathPatientID(r)
		if err != nil {
			http.Error(w, "Invalid patient ID", http.StatusBadRequest)
			return
		}
		role, _ := utils.GetRoleFromContext(r)
		if role != utils.RolePractitioner {
			sessionID, err := utils.GetUserIDFromContext(r)
			if err != nil || sessionID != patientID {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		fn(w, r)
	}))
}

func pathPatientID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id), err
}

func writeMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrPreconditionFailed):
		http.Error(w, "Action not allowed in current state", http.StatusConflict)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

type reviewCountdown struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// GetVitality returns the patient's funnel projection: state, booking
// sub-flow, gate, file id and the review countdown.
func (h *Handler) GetVitality(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	var patient models.Patient
	if err := h.db.First(&patient, patientID).Error; err != nil {
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"state":                patient.VitalityState,
		"appointment_status":   patient.AppointmentStatus,
		"selected_booking_day": patient.SelectedBookingDay,
		"visit_paid":           patient.VisitPaid,
		"file_id":              utils.GenerateFileID(patient.FullName, patient.CountryCode, time.Now()),
		"unread_badge":         models.UnreadBadge(patient.VitalityState, patient.AppointmentStatus),
	}

	if patient.VitalityState == models.StateReview && patient.ReviewDeadline != nil {
		remaining := time.Until(*patient.ReviewDeadline)
		if remaining < 0 {
			remaining = 0
		}
		response["review_countdown"] = reviewCountdown{
			Days:    int(remaining / (24 * time.Hour)),
			Hours:   int(remaining % (24 * time.Hour) / time.Hour),
			Minutes: int(remaining % time.Hour / time.Minute),
		}
	}

	if gate, err := h.machine.Gate(patientID); err == nil {
		response["gate"] = gate
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) OpenGate(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	var req struct {
		Kind        models.GateKind `json:"kind"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	gate, err := h.machine.OpenGate(patientID, req.Kind, req.Title, req.Description)
	if err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(gate)
}

func (h *Handler) SubmitGate(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	gate, err := h.machine.SubmitGate(patientID)
	if err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(gate)
}

func (h *Handler) CloseGate(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	if err := h.machine.CloseGate(patientID); err != nil {
		http.Error(w, "Error closing gate", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Gate closed"})
}

func (h *Handler) StartCapture(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	session, err := h.machine.StartCapture(patientID)
	if err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

func (h *Handler) GetCaptureProgress(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	progress, err := h.machine.CaptureProgress(patientID)
	if err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"progress": progress})
}

func (h *Handler) CompleteCapture(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	if err := h.machine.CompleteCapture(patientID); err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Capture complete", "state": string(models.StateReview)})
}

func (h *Handler) GetBookingDays(w http.ResponseWriter, r *http.Request) {
	var blocked []models.BlockedDay
	if err := h.db.Find(&blocked).Error; err != nil {
		http.Error(w, "Error retrieving calendar", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"days": models.BookingWindow(time.Now(), models.BlockedSet(blocked)),
	})
}

func (h *Handler) SelectBookingDay(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	var req struct {
		Day int `json:"day"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.machine.SelectBookingDay(patientID, req.Day); err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"selected_booking_day": req.Day})
}
