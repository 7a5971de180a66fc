package notify

import (
	"context"
	"sync"
)

// Recorded is one captured notification.
type Recorded struct {
	Kind       string // "incoming" or "missed"
	UserID     string
	CallID     string
	CallerName string
	CallType   string
}

// Memory records notifications in-process. Useful for tests.
type Memory struct {
	mu   sync.Mutex
	sent []Recorded
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) IncomingCall(_ context.Context, userID, callID, callerName, callType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Recorded{Kind: "incoming", UserID: userID, CallID: callID, CallerName: callerName, CallType: callType})
	return nil
}

func (m *Memory) MissedCall(_ context.Context, userID, callID, callerName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, Recorded{Kind: "missed", UserID: userID, CallID: callID, CallerName: callerName})
	return nil
}

func (m *Memory) Sent() []Recorded {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Recorded, len(m.sent))
	copy(out, m.sent)
	return out
}
