package vitality

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	stream_chat "github.com/GetStream/stream-chat-go/v5"
	"github.com/dphilippe/vitality-server/cmd/models"
)

// Weekly checkups are included in the treatment; no gate applies.

func (h *Handler) GetCheckup(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	var patient models.Patient
	if err := h.db.First(&patient, patientID).Error; err != nil {
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}
	if patient.AppointmentStatus != models.AppointmentConfirmed {
		http.Error(w, "Checkups unlock after the first visit is confirmed", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"modes":    []string{"online", "inperson"},
		"fee":      0,
		"clinic":   "Beirut Clinic, Hamra St.",
		"next":     "Monday, 10:00 AM",
		"included": true,
	})
}

// StartCheckupSession opens the online checkup channel between the patient
// and the practitioner and returns a Stream token for it.
func (h *Handler) StartCheckupSession(w http.ResponseWriter, r *http.Request) {
	patientID, _ := pathPatientID(r)

	var patient models.Patient
	if err := h.db.First(&patient, patientID).Error; err != nil {
		http.Error(w, "Patient not found", http.StatusNotFound)
		return
	}
	if patient.AppointmentStatus != models.AppointmentConfirmed {
		http.Error(w, "Checkups unlock after the first visit is confirmed", http.StatusConflict)
		return
	}

	streamClient, err := stream_chat.NewClient(os.Getenv("STREAM_API_KEY"), os.Getenv("STREAM_API_SECRET"))
	if err != nil {
		http.Error(w, "Error initializing Stream client", http.StatusInternalServerError)
		return
	}

	patientRef := fmt.Sprintf("patient-%d", patientID)
	channelID := fmt.Sprintf("checkup-%d", patientID)

	_, err = streamClient.CreateChannel(r.Context(), "messaging", channelID, "practitioner", &stream_chat.ChannelRequest{
		Members: []string{patientRef, "practitioner"},
	})
	if err != nil {
		http.Error(w, "Error creating checkup channel", http.StatusInternalServerError)
		return
	}

	token, err := streamClient.CreateToken(patientRef, time.Now().Add(24*time.Hour))
	if err != nil {
		http.Error(w, "Error generating Stream token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"channel_id":   channelID,
		"stream_token": token,
	})
}
