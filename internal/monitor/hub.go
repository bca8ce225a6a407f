// Package monitor implements a websocket introspection feed that
// broadcasts found/lost device events and task completions to any
// number of connected observers, adapted from the teacher's
// spotifysearch.ConnectionManager (which manages a single outbound
// connection to one extension) into a fan-out hub serving many
// inbound debugging clients.
package monitor

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// EventType tags one Hub broadcast message.
type EventType string

const (
	EventDeviceFound   EventType = "device_found"
	EventDeviceLost    EventType = "device_lost"
	EventTaskCompleted EventType = "task_completed"
)

// Event is one message pushed to every connected observer.
type Event struct {
	Type  EventType `json:"type"`
	Path  string    `json:"path,omitempty"`
	UDN   string    `json:"udn,omitempty"`
	Kind  string    `json:"kind,omitempty"`
	OK    bool      `json:"ok,omitempty"`
	Error string    `json:"error,omitempty"`
}

type observer struct {
	conn     *websocket.Conn
	send     chan Event
	stopPing chan struct{}
}

// Hub fans Events out to every currently connected websocket observer.
type Hub struct {
	mu        sync.RWMutex
	observers map[*observer]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{observers: make(map[*observer]struct{})}
}

// Register adds conn as an observer and starts its write/ping
// goroutines, mirroring SetConnection's per-connection ping loop and
// message reader in the teacher's ConnectionManager.
func (h *Hub) Register(conn *websocket.Conn) {
	obs := &observer{
		conn:     conn,
		send:     make(chan Event, 32),
		stopPing: make(chan struct{}),
	}

	h.mu.Lock()
	h.observers[obs] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(obs)
	go h.pingLoop(obs)
	go h.readLoop(obs)
}

func (h *Hub) writeLoop(obs *observer) {
	for ev := range obs.send {
		obs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := obs.conn.WriteJSON(ev); err != nil {
			h.remove(obs)
			return
		}
	}
}

func (h *Hub) pingLoop(obs *observer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			obs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := obs.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(obs)
				return
			}
		case <-obs.stopPing:
			return
		}
	}
}

// readLoop drains and discards inbound frames solely to detect
// disconnects and respond to control frames; the feed is one-way.
func (h *Hub) readLoop(obs *observer) {
	for {
		if _, _, err := obs.conn.ReadMessage(); err != nil {
			h.remove(obs)
			return
		}
	}
}

func (h *Hub) remove(obs *observer) {
	h.mu.Lock()
	if _, ok := h.observers[obs]; ok {
		delete(h.observers, obs)
		close(obs.stopPing)
		close(obs.send)
		obs.conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast pushes ev to every connected observer, dropping it for an
// observer whose send buffer is full rather than blocking the caller.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for obs := range h.observers {
		select {
		case obs.send <- ev:
		default:
			log.Printf("monitor: dropping event for slow observer")
		}
	}
}

// ObserverCount reports how many observers are currently connected,
// for tests and introspection.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// MarshalForTest is a small helper so tests can assert on the wire
// shape without importing encoding/json themselves.
func (ev Event) MarshalForTest() ([]byte, error) {
	return json.Marshal(ev)
}
