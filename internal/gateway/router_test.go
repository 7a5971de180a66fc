package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"chat-platform/internal/apperr"
)

func testSession() *Session {
	return newSession("sess-1", "alice", nil, time.Now())
}

func drain(t *testing.T, s *Session) outbound {
	t.Helper()
	select {
	case out := <-s.send:
		return out
	default:
		t.Fatalf("expected an outbound event")
		return outbound{}
	}
}

func expectNothing(t *testing.T, s *Session) {
	t.Helper()
	select {
	case out := <-s.send:
		t.Fatalf("unexpected outbound event %+v", out)
	default:
	}
}

func TestDispatch_UnknownEvent(t *testing.T) {
	r := NewRouter(nil)
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "no_such_event"})

	out := drain(t, sess)
	if out.Event != eventError {
		t.Fatalf("expected error event, got %s", out.Event)
	}
	if p := out.Data.(errorPayload); p.Code != string(apperr.CodeValidation) {
		t.Fatalf("unexpected payload %+v", p)
	}
}

func TestDispatch_DomainErrorBecomesTypedEvent(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("boom", func(context.Context, *Session, json.RawMessage) error {
		return apperr.Conflict("already in a call")
	})
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "boom"})

	out := drain(t, sess)
	p := out.Data.(errorPayload)
	if out.Event != eventError || p.Code != string(apperr.CodeConflict) || p.Message != "already in a call" {
		t.Fatalf("unexpected error event %+v", out)
	}
}

func TestDispatch_UnexpectedErrorMapsToInternal(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("boom", func(context.Context, *Session, json.RawMessage) error {
		return errors.New("pq: connection refused")
	})
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "boom"})

	out := drain(t, sess)
	p := out.Data.(errorPayload)
	if p.Code != string(apperr.CodeInternal) || p.Message != "internal error" {
		t.Fatalf("internal details must not leak, got %+v", p)
	}
}

func TestDispatch_PanicIsContained(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("boom", func(context.Context, *Session, json.RawMessage) error {
		panic("nil deref somewhere")
	})
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "boom"})

	out := drain(t, sess)
	if p := out.Data.(errorPayload); p.Code != string(apperr.CodeInternal) {
		t.Fatalf("expected internal code, got %+v", p)
	}
}

func TestDispatch_WebRTCErrorsUseRelayErrorEvent(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("webrtc:offer", func(context.Context, *Session, json.RawMessage) error {
		return apperr.NotFound("peer not found")
	})
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "webrtc:offer"})

	out := drain(t, sess)
	if out.Event != eventWebRTCError {
		t.Fatalf("expected webrtc:error, got %s", out.Event)
	}
}

func TestDispatch_SuccessIsSilent(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("ok", func(context.Context, *Session, json.RawMessage) error { return nil })
	sess := testSession()

	r.Dispatch(context.Background(), sess, Frame{Event: "ok"})
	expectNothing(t, sess)
}

func TestHandleRejectsDuplicateRegistration(t *testing.T) {
	r := NewRouter(nil)
	r.Handle("x", func(context.Context, *Session, json.RawMessage) error { return nil })
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	r.Handle("x", func(context.Context, *Session, json.RawMessage) error { return nil })
}
