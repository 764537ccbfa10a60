package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	enginesync "bayou/internal/sync"
)

// MessageToSend defines the structure for sending a payload to a specific user.
type MessageToSend struct {
	TargetUserID uuid.UUID
	Payload      []byte
}

// Hub maintains the set of active clients and fans snapshot payloads out
// to the connections of the users watching each view.
type Hub struct {
	// Registered clients. Maps user ID to a set of active client connections.
	Clients map[uuid.UUID]map[*Client]bool

	// Channel for sending payloads to specific users.
	SendDirect chan *MessageToSend

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Controller that owns the store subscriptions behind each view.
	Sync *enginesync.Controller

	log *slog.Logger

	// Mutex to protect concurrent access to the clients map.
	mu sync.RWMutex
}

func NewHub(sc *enginesync.Controller, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		SendDirect: make(chan *MessageToSend, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Clients:    make(map[uuid.UUID]map[*Client]bool),
		Sync:       sc,
		log:        log,
	}
}

// Run starts the hub's processing loop.
func (h *Hub) Run() {
	h.log.Info("websocket hub started")
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.Clients[client.UserID]; !ok {
				h.Clients[client.UserID] = make(map[*Client]bool)
			}
			h.Clients[client.UserID][client] = true
			h.log.Debug("websocket client registered", "user", client.UserID, "connections", len(h.Clients[client.UserID]))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if userClients, ok := h.Clients[client.UserID]; ok {
				if _, clientOk := userClients[client]; clientOk {
					delete(userClients, client)
					if len(userClients) == 0 {
						delete(h.Clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			client.cancelWatches()

		case directMessage := <-h.SendDirect:
			h.mu.RLock()
			for client := range h.Clients[directMessage.TargetUserID] {
				select {
				case client.Send <- directMessage.Payload:
				default:
					h.log.Warn("send buffer full, payload dropped", "user", client.UserID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// SendDirectMessage queues a payload for every connection of targetUserID.
// Callers (snapshot callbacks, actors) must not block on a busy hub.
func (h *Hub) SendDirectMessage(targetUserID uuid.UUID, payload []byte) {
	message := &MessageToSend{
		TargetUserID: targetUserID,
		Payload:      payload,
	}
	select {
	case h.SendDirect <- message:
	case <-time.After(1 * time.Second):
		h.log.Warn("timeout queuing websocket payload", "user", targetUserID)
	}
}
