package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Client struct {
	UserID uint
	Conn   *websocket.Conn
	mu     sync.Mutex
}

// Hub fans patient events out to connected practitioner dashboards. The
// database row remains the durable record; the hub is best-effort delivery
// for clients that happen to be online.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// ClientCount reports how many practitioner dashboards are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type event struct {
	Type         string `json:"type"`
	UUID         string `json:"uuid,omitempty"`
	FileID       string `json:"file_id,omitempty"`
	PatientID    uint   `json:"patient_id,omitempty"`
	RelativeTime string `json:"time,omitempty"`
}

// BroadcastNotification pushes a notification record to every connected
// practitioner client. Returns how many clients received it.
func (h *Hub) BroadcastNotification(n *models.Notification) int {
	msg, err := json.Marshal(event{
		Type:         n.Type,
		UUID:         n.UUID,
		FileID:       n.FileID,
		PatientID:    n.PatientID,
		RelativeTime: n.RelativeTime(time.Now()),
	})
	if err != nil {
		log.Printf("Error marshaling ws event: %v", err)
		return 0
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, msg)
		c.mu.Unlock()
		if err != nil {
			log.Printf("WebSocket write error for user %d: %v", c.UserID, err)
			h.unregister(c)
			c.Conn.Close()
			continue
		}
		delivered++
	}
	return delivered
}

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.Handle("/ws/practitioner", utils.PractitionerOnly(http.HandlerFunc(h.servePractitioner)))
}

func (h *Handler) servePractitioner(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &Client{UserID: userID, Conn: conn}
	h.hub.register(client)

	go func() {
		defer func() {
			h.hub.unregister(client)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				return
			}
		}
	}()
}
