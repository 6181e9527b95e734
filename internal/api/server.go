// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"autoresume/internal/queue"
	"autoresume/internal/statepaths"
)

var upgrader = websocket.Upgrader{
	// Loopback-only by construction (the listener itself is bound to
	// 127.0.0.1), so origin checking adds nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Event is one broadcast message sent to connected WebSocket clients,
// per §6's "broadcasting queue/state changes as JSON events".
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Hub fans status/queue change events out to every connected WebSocket
// client. Disabled by default; the Supervisor only constructs one when
// local_server_enabled is set in configuration.
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan Event
	mu         sync.RWMutex
}

// NewHub constructs a Hub. Call Run in a goroutine before serving
// connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan Event, 256),
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
		case ev := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteJSON(ev); err != nil {
					log.Debug().Err(err).Msg("api: websocket client write failed")
					go func(c *websocket.Conn) { h.unregister <- c }(conn)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for delivery to every connected client.
// Non-blocking: a full buffer drops the event rather than stalling the
// caller (the scheduler/watcher goroutines that feed this must never
// block on a slow WebSocket client).
func (h *Hub) Broadcast(eventType string, data interface{}) {
	select {
	case h.broadcast <- Event{Type: eventType, Data: data}:
	default:
		log.Debug().Str("event", eventType).Msg("api: broadcast buffer full, dropping event")
	}
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("api: websocket upgrade failed")
		return
	}
	h.register <- conn

	// Drain and discard; this endpoint is broadcast-only, but reading
	// keeps the connection's read deadline alive and detects client
	// disconnects promptly.
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Server exposes the optional loopback-only HTTP status endpoint and, if
// hub is non-nil, the WebSocket broadcast endpoint, per §6.
type Server struct {
	paths statepaths.Paths
	hub   *Hub
}

// NewServer constructs a Server. hub may be nil to disable the WebSocket
// endpoint while still serving HTTP status/actions.
func NewServer(paths statepaths.Paths, hub *Hub) *Server {
	return &Server{paths: paths, hub: hub}
}

// Mux returns the HTTP handler: GET /state for the current document, POST
// /resume-now and /clear for the two accepted actions, and (if a hub was
// configured) GET /ws for the WebSocket broadcast stream.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/resume-now", s.handleResumeNow)
	mux.HandleFunc("/clear", s.handleClear)
	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.handleWS)
	}
	return mux
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	store := queue.New(s.paths.QueueFile)
	doc, err := store.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// handleResumeNow forces the queue head's reset time to now, letting an
// operator short-circuit the countdown without waiting out the real
// deadline. The watcher's normal poll loop picks up the change.
func (s *Server) handleResumeNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	store := queue.New(s.paths.QueueFile)
	ev, ok, err := store.PeekNextPending()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := store.ForceReady(ev.ID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := queue.New(s.paths.QueueFile).Reset(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
