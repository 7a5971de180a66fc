package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

// Frame is the wire envelope for every inbound and outbound event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Session is one live, authenticated websocket connection. A user may
// hold many sessions concurrently (multi-device); each has its own write
// pump, so a session's outbound events are FIFO relative to each other.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	conn *websocket.Conn
	send chan outbound

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id, userID string, conn *websocket.Conn, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		conn:      conn,
		send:      make(chan outbound, sendBufferSize),
		done:      make(chan struct{}),
	}
}

var errSessionClosed = errors.New("session closed")
var errSendBufferFull = errors.New("session send buffer full")

// enqueue hands an event to the write pump without blocking the caller.
// A full buffer means the client is not draining; the event is dropped
// and reported so the caller can decide (slow consumers are closed by
// the write deadline eventually).
func (s *Session) enqueue(event string, payload any) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	select {
	case s.send <- outbound{Event: event, Data: payload}:
		return nil
	case <-s.done:
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// writePump is the single writer for the connection. Run as a goroutine;
// it exits when the session closes.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case out := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(out); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Registry holds this process's live sessions. It is deliberately
// process-local: only connection ownership lives here, never presence —
// presence is the directory's job so gateways can scale horizontally.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len reports the number of live local sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send implements the Sender contract consumed by the call, chat, and
// signaling services. A session registered by another gateway process is
// not found here; its owning process delivers to it.
func (r *Registry) Send(_ context.Context, sessionID, event string, payload any) error {
	s, ok := r.get(sessionID)
	if !ok {
		return errSessionClosed
	}
	return s.enqueue(event, payload)
}

// CloseAll tears down every local session; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}
