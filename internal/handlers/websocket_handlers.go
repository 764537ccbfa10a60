package handlers

import (
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"bayou/internal/middleware"
	"bayou/internal/websocket"
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS middleware; the
		// upgrade itself is gated by token auth.
		return true
	},
}

// HandleWebSocket upgrades the connection and starts the snapshot pumps.
// Authentication happened in the middleware (bearer header or ?token=).
func (s *Server) HandleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok || userID == uuid.Nil {
			http.Error(w, "Missing authentication token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.Log.Warn("websocket upgrade failed", "user", userID, "error", err)
			return
		}

		client := websocket.NewClient(s.Hub, userID, conn)
		client.Hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}
