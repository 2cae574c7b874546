// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/motion_beacon/internal/broadcast"
	"github.com/relabs-tech/motion_beacon/internal/permission"
)

// writeWait bounds every websocket write.
const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is a command sent by the browser over /ws.
type WSMessage struct {
	Action string `json:"action"` // start, stop, toggle, refresh, grant, deny
}

// WSResponse is pushed to the browser over /ws.
type WSResponse struct {
	Type    string     `json:"type"` // state, error
	State   *StateView `json:"state,omitempty"`
	Message string     `json:"message,omitempty"`
}

// WebServer is the browser presentation of a Beacon.
type WebServer struct {
	beacon *Beacon
	push   time.Duration
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

// NewWebServer pushes state to websocket clients every push interval and
// on every controller change or authorization prompt.
func NewWebServer(b *Beacon, push time.Duration, logger *slog.Logger) *WebServer {
	s := &WebServer{
		beacon: b,
		push:   push,
		logger: logger,
		subs:   make(map[chan struct{}]struct{}),
	}
	b.Controller.OnChange(func(broadcast.Status) { s.wake() })
	if b.Prompt != nil {
		b.Prompt.OnPrompt(func(permission.Request) { s.wake() })
	}
	return s
}

// Routes builds the HTTP handler. static may be nil.
func (s *WebServer) Routes(metrics http.Handler, static http.FileSystem) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("POST /api/advertising/{action}", s.handleAdvertising)
	mux.HandleFunc("POST /api/authorization", s.handleAuthorization)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	if static != nil {
		mux.Handle("/", http.FileServer(static))
	}
	return mux
}

func (s *WebServer) handleState(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.beacon.View())
}

func (s *WebServer) handleAdvertising(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if !s.apply(action) {
		http.Error(w, "unknown action "+action, http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, s.beacon.View())
}

// apply runs a control action and reports whether it was recognized.
func (s *WebServer) apply(action string) bool {
	c := s.beacon.Controller
	switch action {
	case "start":
		c.RequestStart()
	case "stop":
		c.RequestStop()
	case "toggle":
		s.beacon.Toggle()
	case "refresh":
		c.Refresh()
	case "grant", "deny":
		if s.beacon.Prompt == nil {
			return false
		}
		s.beacon.Prompt.ResolveAll(action == "grant")
	default:
		return false
	}
	s.logger.Debug("web: action", "action", action)
	return true
}

// handleAuthorization answers pending prompts. The body maps capability
// names to decisions, e.g. {"advertise":true,"connect":true,"scan":false}.
// {"granted":true} answers every capability at once.
func (s *WebServer) handleAuthorization(w http.ResponseWriter, r *http.Request) {
	if s.beacon.Prompt == nil {
		http.Error(w, "authorization is not interactive", http.StatusConflict)
		return
	}

	var body map[string]bool
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}

	var answered int
	if granted, ok := body["granted"]; ok {
		answered = s.beacon.Prompt.ResolveAll(granted)
	} else {
		results := make(map[broadcast.Capability]bool, len(body))
		for name, ok := range body {
			results[broadcast.Capability(name)] = ok
		}
		answered = s.beacon.Prompt.Resolve(results)
	}

	s.writeJSON(w, http.StatusOK, struct {
		Answered int       `json:"answered"`
		State    StateView `json:"state"`
	}{answered, s.beacon.View()})
}

func (s *WebServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("web: websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	wake := s.subscribe()
	defer s.unsubscribe(wake)

	// Reader: commands from the browser. Closing done stops the writer.
	done := make(chan struct{})
	replies := make(chan WSResponse, 4)
	go func() {
		defer close(done)
		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("web: websocket read error", "error", err)
				}
				return
			}
			if !s.apply(msg.Action) {
				select {
				case replies <- WSResponse{Type: "error", Message: "unknown action " + msg.Action}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(s.push)
	defer ticker.Stop()

	// Only this goroutine writes to conn.
	for {
		if err := s.sendState(conn); err != nil {
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		case <-wake:
		case resp := <-replies:
			if err := writeWS(conn, resp); err != nil {
				return
			}
		}
	}
}

func (s *WebServer) sendState(conn *websocket.Conn) error {
	v := s.beacon.View()
	return writeWS(conn, WSResponse{Type: "state", State: &v})
}

func writeWS(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (s *WebServer) subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *WebServer) unsubscribe(ch chan struct{}) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

func (s *WebServer) wake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *WebServer) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("web: json encode error", "error", err)
	}
}
