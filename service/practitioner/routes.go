package practitioner

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/dphilippe/vitality-server/service/vitality"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Handler struct {
	db      *gorm.DB
	machine *vitality.Machine
}

func NewHandler(db *gorm.DB, machine *vitality.Machine) *Handler {
	return &Handler{db: db, machine: machine}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/practitioner/login", h.HandleLogin).Methods("POST")

	pr := router.PathPrefix("/practitioner").Subrouter()
	pr.Handle("/patients", utils.PractitionerOnly(http.HandlerFunc(h.GetPatients))).Methods("GET")
	pr.Handle("/patients/{id}/ready", utils.PractitionerOnly(http.HandlerFunc(h.SendReady))).Methods("POST")
	pr.Handle("/patients/{id}/confirm", utils.PractitionerOnly(http.HandlerFunc(h.ConfirmAppointment))).Methods("POST")
	pr.Handle("/calendar", utils.PractitionerOnly(http.HandlerFunc(h.GetBlockedDays))).Methods("GET")
	pr.Handle("/calendar/toggle", utils.PractitionerOnly(http.HandlerFunc(h.ToggleBlockedDay))).Methods("POST")
	pr.Handle("/notifications", utils.PractitionerOnly(http.HandlerFunc(h.GetNotifications))).Methods("GET")
	pr.Handle("/notifications/{uuid}/read", utils.PractitionerOnly(http.HandlerFunc(h.MarkNotificationRead))).Methods("PATCH")
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var practitioner models.Practitioner
	if err := h.db.Where("email = ?", loginRequest.Email).First(&practitioner).Error; err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(practitioner.PasswordHash), []byte(loginRequest.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, err := utils.GenerateJWT(practitioner.ID, utils.RolePractitioner, 7500)
	if err != nil {
		http.Error(w, "Error generating access token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":         "Login successful",
		"access_token":    accessToken,
		"practitioner_id": practitioner.ID,
	})
}

// GetPatients lists every patient file with its funnel position, for the
// dashboard overview.
func (h *Handler) GetPatients(w http.ResponseWriter, r *http.Request) {
	var patients []models.Patient
	if err := h.db.Order("created_at DESC").Find(&patients).Error; err != nil {
		http.Error(w, "Error retrieving patients", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	type entry struct {
		models.Patient
		FileID      string `json:"file_id"`
		UnreadBadge int    `json:"unread_badge"`
	}
	entries := make([]entry, 0, len(patients))
	for _, p := range patients {
		entries = append(entries, entry{
			Patient:     p,
			FileID:      utils.GenerateFileID(p.FullName, p.CountryCode, now),
			UnreadBadge: models.UnreadBadge(p.VitalityState, p.AppointmentStatus),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"patients": entries,
		"total":    len(entries),
	})
}

func writeMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vitality.ErrNotFound):
		http.Error(w, "Patient not found", http.StatusNotFound)
	case errors.Is(err, vitality.ErrPreconditionFailed):
		http.Error(w, "Action not allowed in current state", http.StatusConflict)
	default:
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

// SendReady signals that the iris review is complete and the patient may
// book their first visit.
func (h *Handler) SendReady(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	if err := h.machine.SendReady(uint(patientID)); err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Patient is ready to book", "state": string(models.StateReady)})
}

func (h *Handler) ConfirmAppointment(w http.ResponseWriter, r *http.Request) {
	patientID, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	if err := h.machine.ConfirmAppointment(uint(patientID)); err != nil {
		writeMachineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Appointment confirmed",
		"state":   string(models.StateDashboard),
		"status":  string(models.AppointmentConfirmed),
	})
}

func (h *Handler) GetBlockedDays(w http.ResponseWriter, r *http.Request) {
	var blocked []models.BlockedDay
	if err := h.db.Order("day").Find(&blocked).Error; err != nil {
		http.Error(w, "Error retrieving calendar", http.StatusInternalServerError)
		return
	}

	days := make([]int, 0, len(blocked))
	for _, b := range blocked {
		days = append(days, b.Day)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"blocked_days": days})
}

// ToggleBlockedDay flips a day's availability. Toggling twice restores the
// original state.
func (h *Handler) ToggleBlockedDay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Day int `json:"day"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Day < 1 || req.Day > 31 {
		http.Error(w, "Day must be between 1 and 31", http.StatusBadRequest)
		return
	}

	blocked := false
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var existing models.BlockedDay
		result := tx.Where("day = ?", req.Day).First(&existing)
		if result.Error == nil {
			return tx.Unscoped().Delete(&existing).Error
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}
		blocked = true
		return tx.Create(&models.BlockedDay{Day: req.Day}).Error
	})
	if err != nil {
		http.Error(w, "Error updating calendar", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"day": req.Day, "blocked": blocked})
}

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var notifications []models.Notification
	if err := h.db.Order("created_at DESC").Find(&notifications).Error; err != nil {
		http.Error(w, "Error retrieving notifications", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	type entry struct {
		models.Notification
		Time string `json:"time"`
	}
	entries := make([]entry, 0, len(notifications))
	for _, n := range notifications {
		entries = append(entries, entry{Notification: n, Time: n.RelativeTime(now)})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": entries,
		"total":         len(entries),
	})
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]

	result := h.db.Model(&models.Notification{}).Where("uuid = ?", uuid).Update("read", true)
	if result.Error != nil {
		http.Error(w, "Error updating notification", http.StatusInternalServerError)
		return
	}
	if result.RowsAffected == 0 {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Notification marked read"})
}
