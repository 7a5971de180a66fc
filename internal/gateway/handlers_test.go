package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"chat-platform/internal/apperr"
	"chat-platform/internal/auth"
	"chat-platform/internal/call"
	"chat-platform/internal/chat"
	"chat-platform/internal/config"
	"chat-platform/internal/directory"
	"chat-platform/internal/notify"
	"chat-platform/internal/signaling"
)

type testStack struct {
	gw       *Gateway
	registry *Registry
	dir      *directory.MemoryDirectory
	callRepo *call.MemoryRepo
	chatRepo *chat.MemoryRepo
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret"})
	if err != nil {
		t.Fatalf("auth init failed: %v", err)
	}

	dir := directory.NewMemory()
	registry := NewRegistry()
	callRepo := call.NewMemoryRepo()
	chatRepo := chat.NewMemoryRepo()
	chatRepo.PutConversation(chat.Conversation{ID: "conv-1", Participants: []string{"alice", "bob"}})

	callSvc := call.NewService(callRepo, dir, registry, notify.Nop{}, nil, call.Config{
		RingTTL:     time.Minute,
		ActiveTTL:   time.Hour,
		AnswerDelay: time.Millisecond,
	})
	chatSvc := chat.NewService(chatRepo, dir, registry, nil, 3*time.Second)
	relay := signaling.New(dir, registry, nil)

	gw := New(nil, am, dir, registry, callSvc, chatSvc, relay, time.Hour)
	return &testStack{gw: gw, registry: registry, dir: dir, callRepo: callRepo, chatRepo: chatRepo}
}

// connect registers a fake live session the way HandleWS would, minus the
// actual socket.
func (s *testStack) connect(t *testing.T, userID, sessionID string) *Session {
	t.Helper()
	sess := newSession(sessionID, userID, nil, time.Now())
	s.registry.add(sess)
	if err := s.dir.Register(context.Background(), userID, sessionID, time.Hour); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	return sess
}

func (s *testStack) dispatch(sess *Session, event string, payload any) {
	data, _ := json.Marshal(payload)
	s.gw.router.Dispatch(context.Background(), sess, Frame{Event: event, Data: data})
}

func awaitEvent(t *testing.T, sess *Session, want string) outbound {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case out := <-sess.send:
			if out.Event == want {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s on %s", want, sess.ID)
		}
	}
}

func TestSendMessageFlow(t *testing.T) {
	s := newTestStack(t)
	alice := s.connect(t, "alice", "sess-a")
	bob := s.connect(t, "bob", "sess-b")

	s.dispatch(alice, "send_message", map[string]any{
		"conversationId": "conv-1",
		"message":        "hey",
		"messageId":      "eph-1",
	})

	out := awaitEvent(t, bob, chat.EventMessageReceived)
	msg := out.Data.(chat.Message)
	if msg.Content != "hey" || msg.SenderID != "alice" {
		t.Fatalf("unexpected message %+v", msg)
	}
	awaitEvent(t, alice, chat.EventMessageSent)

	// Same ephemeral id inside the window: rejected as duplicate, typed
	// error back to the origin connection only.
	s.dispatch(alice, "send_message", map[string]any{
		"conversationId": "conv-1",
		"message":        "hey",
		"messageId":      "eph-1",
	})
	errOut := awaitEvent(t, alice, eventError)
	if p := errOut.Data.(errorPayload); p.Code != string(apperr.CodeConflict) {
		t.Fatalf("expected conflict, got %+v", p)
	}
}

func TestCallFlowOverDispatch(t *testing.T) {
	s := newTestStack(t)
	alice := s.connect(t, "alice", "sess-a")
	bob := s.connect(t, "bob", "sess-b")

	s.dispatch(alice, "call:initiate", map[string]any{
		"callerName":     "Alice",
		"receiverId":     "bob",
		"receiverName":   "Bob",
		"callType":       "AUDIO",
		"conversationId": "conv-1",
	})

	initiated := awaitEvent(t, alice, call.EventInitiated)
	callID := initiated.Data.(call.InitiatedPayload).CallID
	incoming := awaitEvent(t, bob, call.EventIncoming)
	if p := incoming.Data.(call.IncomingPayload); p.CallerID != "alice" || p.CallID != callID {
		t.Fatalf("unexpected incoming payload %+v", p)
	}

	s.dispatch(bob, "call:answer", map[string]any{"callId": callID})
	awaitEvent(t, bob, call.EventAnswerSuccess)
	answered := awaitEvent(t, alice, call.EventAnswered)
	if p := answered.Data.(call.AnsweredPayload); p.ReceiverID != "bob" {
		t.Fatalf("unexpected answered payload %+v", p)
	}

	s.dispatch(bob, "call:end", map[string]any{"callId": callID})
	awaitEvent(t, alice, call.EventEnded)
	awaitEvent(t, bob, call.EventEnded)

	persisted, ok, _ := s.callRepo.GetByID(context.Background(), callID)
	if !ok || persisted.Status != call.StatusEnded {
		t.Fatalf("expected persisted ENDED call, got %+v", persisted)
	}
}

func TestCallInitiateRejectsSpoofedCaller(t *testing.T) {
	s := newTestStack(t)
	alice := s.connect(t, "alice", "sess-a")
	s.connect(t, "bob", "sess-b")

	s.dispatch(alice, "call:initiate", map[string]any{
		"callerId":       "bob",
		"callerName":     "Bob",
		"receiverId":     "alice",
		"callType":       "AUDIO",
		"conversationId": "conv-1",
	})
	out := awaitEvent(t, alice, eventError)
	if p := out.Data.(errorPayload); p.Code != string(apperr.CodeValidation) {
		t.Fatalf("expected validation error, got %+v", p)
	}
}

func TestWebRTCForwardOverDispatch(t *testing.T) {
	s := newTestStack(t)
	alice := s.connect(t, "alice", "sess-a")
	bob1 := s.connect(t, "bob", "sess-b1")
	bob2 := s.connect(t, "bob", "sess-b2")

	s.dispatch(alice, "webrtc:offer", map[string]any{"to": "bob", "sdp": "v=0"})

	for _, sess := range []*Session{bob1, bob2} {
		out := awaitEvent(t, sess, "webrtc:offer")
		p := out.Data.(map[string]any)
		if p["from"] != "alice" || p["sdp"] != "v=0" {
			t.Fatalf("unexpected forwarded payload %+v", p)
		}
	}

	// Peer with no live sessions: webrtc:error back to sender.
	s.dispatch(alice, "webrtc:offer", map[string]any{"to": "carol", "sdp": "v=0"})
	out := awaitEvent(t, alice, eventWebRTCError)
	if p := out.Data.(errorPayload); p.Code != string(apperr.CodeNotFound) {
		t.Fatalf("expected peer not found, got %+v", p)
	}
}

func TestMalformedPayload(t *testing.T) {
	s := newTestStack(t)
	alice := s.connect(t, "alice", "sess-a")

	s.gw.router.Dispatch(context.Background(), alice, Frame{Event: "call:answer", Data: json.RawMessage(`"not an object"`)})
	out := awaitEvent(t, alice, eventError)
	if p := out.Data.(errorPayload); p.Code != string(apperr.CodeValidation) {
		t.Fatalf("expected validation error, got %+v", p)
	}
}
