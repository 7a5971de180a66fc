package signaling

import (
	"context"
	"sync"
	"testing"
	"time"

	"chat-platform/internal/apperr"
	"chat-platform/internal/directory"
)

type sentEvent struct {
	SessionID string
	Event     string
	Payload   any
}

type captureSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (c *captureSender) Send(_ context.Context, sessionID, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, sentEvent{SessionID: sessionID, Event: event, Payload: payload})
	return nil
}

func TestForward_PeerOffline(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	sender := &captureSender{}
	relay := New(dir, sender, nil)

	err := relay.Forward(ctx, EventOffer, "alice", "bob", map[string]any{"sdp": "v=0"})
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("expected peer not found, got %v", err)
	}
	if len(sender.events) != 0 {
		t.Fatalf("expected no delivery, got %+v", sender.events)
	}
}

func TestForward_MultiDeviceFanOut(t *testing.T) {
	ctx := context.Background()
	dir := directory.NewMemory()
	sender := &captureSender{}
	relay := New(dir, sender, nil)

	_ = dir.Register(ctx, "bob", "sess-b1", time.Hour)
	_ = dir.Register(ctx, "bob", "sess-b2", time.Hour)

	payload := map[string]any{"to": "bob", "candidate": "cand", "sdpMid": "0"}
	if err := relay.Forward(ctx, EventICECandidate, "alice", "bob", payload); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(sender.events) != 2 {
		t.Fatalf("expected delivery to both devices, got %d", len(sender.events))
	}
	for _, e := range sender.events {
		got := e.Payload.(map[string]any)
		if got["from"] != "alice" {
			t.Fatalf("expected from annotation, got %+v", got)
		}
		// Opaque passthrough: negotiation fields are untouched.
		if got["candidate"] != "cand" || got["sdpMid"] != "0" {
			t.Fatalf("payload was transformed: %+v", got)
		}
	}
	// The caller's map must not be mutated.
	if _, ok := payload["from"]; ok {
		t.Fatalf("input payload mutated")
	}
}

func TestForward_RequiresRecipient(t *testing.T) {
	relay := New(directory.NewMemory(), &captureSender{}, nil)
	if err := relay.Forward(context.Background(), EventAnswer, "alice", "", nil); !apperr.Is(err, apperr.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
