package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bayou/internal/store"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// watchRequest is the control message a client sends to start or stop a
// live view. View is a collection path such as "threads",
// "threads/<id>/comments", "conversations" or
// "conversations/<id>/messages".
type watchRequest struct {
	Action string `json:"action"` // "watch" | "unwatch"
	View   string `json:"view"`
}

// Envelope is one pushed update: the full current result set of a view.
type Envelope struct {
	View string            `json:"view"`
	Docs []json.RawMessage `json:"docs"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The user ID this client represents.
	UserID uuid.UUID

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound payloads.
	Send chan []byte

	// Views this connection is watching, for teardown on disconnect.
	mu    sync.Mutex
	views map[string]bool
}

func NewClient(hub *Hub, userID uuid.UUID, conn *websocket.Conn) *Client {
	return &Client{
		Hub:    hub,
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		views:  make(map[string]bool),
	}
}

// ReadPump pumps control messages from the websocket connection into
// view subscriptions on the sync controller.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read error", "user", c.UserID, "error", err)
			}
			break
		}

		var req watchRequest
		if err := json.Unmarshal(message, &req); err != nil {
			slog.Debug("unparseable websocket control message", "user", c.UserID)
			continue
		}
		switch req.Action {
		case "watch":
			c.watch(req.View)
		case "unwatch":
			c.unwatch(req.View)
		}
	}
}

func (c *Client) watch(view string) {
	q, ok := c.viewQuery(view)
	if !ok {
		slog.Debug("rejected watch for unknown view", "user", c.UserID, "view", view)
		return
	}

	key := c.viewKey(view)
	err := c.Hub.Sync.Watch(context.Background(), key, q, func(snaps []store.Snapshot) {
		envelope := Envelope{View: view, Docs: make([]json.RawMessage, 0, len(snaps))}
		for _, snap := range snaps {
			envelope.Docs = append(envelope.Docs, json.RawMessage(snap.Data))
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return
		}
		c.Hub.SendDirectMessage(c.UserID, payload)
	})
	if err != nil {
		slog.Warn("watch failed", "user", c.UserID, "view", view, "error", err)
		return
	}

	c.mu.Lock()
	c.views[view] = true
	c.mu.Unlock()
}

func (c *Client) unwatch(view string) {
	c.Hub.Sync.Unwatch(c.viewKey(view))
	c.mu.Lock()
	delete(c.views, view)
	c.mu.Unlock()
}

func (c *Client) cancelWatches() {
	c.mu.Lock()
	views := make([]string, 0, len(c.views))
	for view := range c.views {
		views = append(views, view)
	}
	c.views = make(map[string]bool)
	c.mu.Unlock()
	for _, view := range views {
		c.Hub.Sync.Unwatch(c.viewKey(view))
	}
}

// viewKey scopes a watch to this user so that re-watching the same view
// from a new screen replaces the old subscription instead of leaking it.
func (c *Client) viewKey(view string) string {
	return c.UserID.String() + "#" + view
}

// viewQuery maps a view path onto a store query. Conversation listings
// are always scoped to the calling user.
func (c *Client) viewQuery(view string) (store.Query, bool) {
	parts := strings.Split(view, "/")
	switch {
	case view == store.ThreadsCollection:
		return store.Query{
			Collection: store.ThreadsCollection,
			OrderBy:    "createdAt",
			Desc:       true,
		}, true

	case view == store.ConversationsCollection:
		return store.Query{
			Collection: store.ConversationsCollection,
			Filters:    []store.Filter{{Field: "participants", Op: "array-contains", Value: c.UserID}},
			OrderBy:    "lastMessageAt",
			Desc:       true,
		}, true

	case len(parts) == 3 && parts[0] == store.ThreadsCollection && parts[2] == "comments":
		return store.Query{Collection: view, OrderBy: "createdAt"}, true

	case len(parts) == 3 && parts[0] == store.ConversationsCollection && parts[2] == "messages":
		return store.Query{Collection: view, OrderBy: "createdAt"}, true
	}
	return store.Query{}, false
}

// WritePump pumps payloads from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Flush any queued payloads into the same frame batch.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
