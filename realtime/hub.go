package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Hub is an in-process WebSocket transport for deployments without PubNub
// keys (local development, single-node demos). It implements the same
// Transport surface the PubNub publisher does.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[string]*wsClient
	channels map[string]map[*wsClient]bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[string]*wsClient),
		channels: make(map[string]map[*wsClient]bool),
	}
}

func (h *Hub) JoinChannel(connectionID, channel string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	client, ok := h.clients[connectionID]
	if !ok {
		return nil
	}
	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*wsClient]bool)
	}
	h.channels[channel][client] = true
	return nil
}

func (h *Hub) Emit(channel, event string, payload map[string]any) error {
	message := map[string]any{"type": event}
	for key, value := range payload {
		message[key] = value
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.channels[channel] {
		select {
		case client.send <- data:
		default:
			// slow consumer; the periodic sweep re-delivers positions
		}
	}
	return nil
}

type heartbeatMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// Serve upgrades an HTTP request to a WebSocket connection, joins it to
// the session's channels and pumps heartbeats into the notifier until the
// client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string, notifier *Notifier) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	if err := notifier.Connect(r.Context(), client.id, sessionID); err != nil {
		h.remove(client)
		conn.Close()
		return nil
	}

	go client.writePump()
	go h.readPump(client, notifier)
	return nil
}

func (h *Hub) readPump(client *wsClient, notifier *Notifier) {
	defer func() {
		h.remove(client)
		client.conn.Close()
	}()

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg heartbeatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "heartbeat" && msg.SessionID != "" {
			notifier.Heartbeat(context.Background(), msg.SessionID)
		}
	}
}

func (c *wsClient) writePump() {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	for channel, members := range h.channels {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.channels, channel)
			}
		}
	}
	close(client.send)
	log.Printf("WebSocket client disconnected: %s", client.id)
}
