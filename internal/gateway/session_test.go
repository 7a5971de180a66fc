package gateway

import (
	"context"
	"testing"
	"time"
)

func TestRegistrySendToUnknownSession(t *testing.T) {
	r := NewRegistry()
	if err := r.Send(context.Background(), "nope", "connected", nil); err == nil {
		t.Fatalf("expected error for unknown session")
	}
}

func TestRegistrySendEnqueuesFIFO(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "alice", nil, time.Now())
	r.add(sess)

	for _, ev := range []string{"a", "b", "c"} {
		if err := r.Send(context.Background(), "s1", ev, nil); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got := <-sess.send
		if got.Event != want {
			t.Fatalf("expected %s, got %s", want, got.Event)
		}
	}
}

func TestEnqueueAfterClose(t *testing.T) {
	sess := newSession("s1", "alice", nil, time.Now())
	// close() touches the conn only through closeOnce; a nil conn is fine
	// here because no pump is running.
	close(sess.done)

	if err := sess.enqueue("x", nil); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestEnqueueFullBufferDoesNotBlock(t *testing.T) {
	sess := newSession("s1", "alice", nil, time.Now())
	for i := 0; i < sendBufferSize; i++ {
		if err := sess.enqueue("fill", nil); err != nil {
			t.Fatalf("unexpected err at %d: %v", i, err)
		}
	}
	if err := sess.enqueue("overflow", nil); err == nil {
		t.Fatalf("expected buffer-full error")
	}
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	sess := newSession("s1", "alice", nil, time.Now())
	r.add(sess)
	if r.Len() != 1 {
		t.Fatalf("expected 1 session")
	}
	r.remove("s1")
	if r.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
	if err := r.Send(context.Background(), "s1", "x", nil); err == nil {
		t.Fatalf("expected error after removal")
	}
}
