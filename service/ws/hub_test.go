package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPractitioner(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	token, err := utils.GenerateJWT(1, utils.RolePractitioner, 60)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/practitioner"
	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	return conn
}

func TestHubBroadcastsToConnectedClients(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	hub := NewHub()
	router := mux.NewRouter()
	NewHandler(hub).RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialPractitioner(t, server)
	defer conn.Close()

	// Registration happens during the upgrade; wait for it to land.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	notification := &models.Notification{
		UUID:      "11111111-2222-3333-4444-555555555555",
		Type:      models.NotificationAppointmentPending,
		PatientID: 7,
		FileID:    "JK-LEB-Q103-001",
	}
	notification.CreatedAt = time.Now()
	assert.Equal(t, 1, hub.BroadcastNotification(notification))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var received struct {
		Type      string `json:"type"`
		UUID      string `json:"uuid"`
		FileID    string `json:"file_id"`
		PatientID uint   `json:"patient_id"`
		Time      string `json:"time"`
	}
	require.NoError(t, json.Unmarshal(msg, &received))
	assert.Equal(t, models.NotificationAppointmentPending, received.Type)
	assert.Equal(t, notification.UUID, received.UUID)
	assert.Equal(t, "JK-LEB-Q103-001", received.FileID)
	assert.EqualValues(t, 7, received.PatientID)
	assert.Equal(t, "Just now", received.Time)
}

func TestHubRequiresPractitionerRole(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	hub := NewHub()
	router := mux.NewRouter()
	NewHandler(hub).RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	token, err := utils.GenerateJWT(2, utils.RolePatient, 60)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/practitioner"
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubDropsDeadClients(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")

	hub := NewHub()
	router := mux.NewRouter()
	NewHandler(hub).RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	conn := dialPractitioner(t, server)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	n := &models.Notification{UUID: "x", Type: models.NotificationAppointmentPending}
	assert.Equal(t, 0, hub.BroadcastNotification(n))
}
