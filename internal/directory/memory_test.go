package directory

import (
	"context"
	"testing"
	"time"
)

func newClockedDirectory() (*MemoryDirectory, *time.Time) {
	d := NewMemory()
	now := time.Unix(1_700_000_000, 0)
	d.SetClock(func() time.Time { return now })
	return d, &now
}

func TestPresenceMultiDevice(t *testing.T) {
	ctx := context.Background()
	d, _ := newClockedDirectory()

	if err := d.Register(ctx, "alice", "s1", time.Hour); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := d.Register(ctx, "alice", "s2", time.Hour); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	sids, err := d.SessionsOf(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(sids) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sids))
	}

	if err := d.Deregister(ctx, "alice", "s1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if online, _ := d.IsOnline(ctx, "alice"); !online {
		t.Fatalf("still one session, should be online")
	}
	if err := d.Deregister(ctx, "alice", "s2"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if online, _ := d.IsOnline(ctx, "alice"); online {
		t.Fatalf("all sessions gone, should be offline")
	}
}

func TestPresenceExpires(t *testing.T) {
	ctx := context.Background()
	d, now := newClockedDirectory()

	if err := d.Register(ctx, "alice", "s1", time.Minute); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	*now = now.Add(2 * time.Minute)
	if online, _ := d.IsOnline(ctx, "alice"); online {
		t.Fatalf("expected presence to expire")
	}
}

func TestMarkPairInCall(t *testing.T) {
	ctx := context.Background()
	d, now := newClockedDirectory()

	ok, err := d.MarkPairInCall(ctx, "alice", "bob", "call-1", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first mark to succeed, ok=%v err=%v", ok, err)
	}

	// Neither participant can enter another call while marked.
	if ok, _ := d.MarkPairInCall(ctx, "alice", "carol", "call-2", time.Minute); ok {
		t.Fatalf("alice is busy, expected guard rejection")
	}
	if ok, _ := d.MarkPairInCall(ctx, "dave", "bob", "call-3", time.Minute); ok {
		t.Fatalf("bob is busy, expected guard rejection")
	}

	id, ok, err := d.InCallOf(ctx, "bob")
	if err != nil || !ok || id != "call-1" {
		t.Fatalf("expected bob in call-1, got %q ok=%v err=%v", id, ok, err)
	}

	// Markers expire with the ring window.
	*now = now.Add(2 * time.Minute)
	if ok, _ := d.IsInCall(ctx, "alice"); ok {
		t.Fatalf("expected marker to expire")
	}
	if ok, _ := d.MarkPairInCall(ctx, "alice", "carol", "call-2", time.Minute); !ok {
		t.Fatalf("expected new call after expiry")
	}
}

func TestClearCallRemovesMarkers(t *testing.T) {
	ctx := context.Background()
	d, _ := newClockedDirectory()

	if _, err := d.MarkPairInCall(ctx, "alice", "bob", "call-1", time.Minute); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := d.CacheCall(ctx, "call-1", []byte(`{}`), time.Minute); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if err := d.ClearCall(ctx, "call-1", []string{"alice", "bob"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok, _ := d.GetCall(ctx, "call-1"); ok {
		t.Fatalf("expected snapshot cleared")
	}
	if ok, _ := d.IsInCall(ctx, "alice"); ok {
		t.Fatalf("expected alice marker cleared")
	}
	if ok, _ := d.IsInCall(ctx, "bob"); ok {
		t.Fatalf("expected bob marker cleared")
	}
}

func TestTryMarkProcessedWindow(t *testing.T) {
	ctx := context.Background()
	d, now := newClockedDirectory()

	first, err := d.TryMarkProcessed(ctx, "conv:msg-1", 3*time.Second)
	if err != nil || !first {
		t.Fatalf("expected first mark to win, got %v err=%v", first, err)
	}
	if again, _ := d.TryMarkProcessed(ctx, "conv:msg-1", 3*time.Second); again {
		t.Fatalf("expected duplicate inside the window")
	}

	*now = now.Add(5 * time.Second)
	if again, _ := d.TryMarkProcessed(ctx, "conv:msg-1", 3*time.Second); !again {
		t.Fatalf("expected fresh mark after window expiry")
	}
}

func TestMissedCounters(t *testing.T) {
	ctx := context.Background()
	d, _ := newClockedDirectory()

	if _, ok, _ := d.GetMissedCalls(ctx, "alice"); ok {
		t.Fatalf("expected cold counter")
	}
	if n, _ := d.IncrMissedCalls(ctx, "alice"); n != 1 {
		t.Fatalf("expected 1, got %d", n)
	}
	if err := d.SetMissedCalls(ctx, "alice", 7); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	n, ok, _ := d.GetMissedCalls(ctx, "alice")
	if !ok || n != 7 {
		t.Fatalf("expected 7, got %d ok=%v", n, ok)
	}
}

func TestCallSnapshotTTL(t *testing.T) {
	ctx := context.Background()
	d, now := newClockedDirectory()

	if err := d.CacheCall(ctx, "call-1", []byte(`{"id":"call-1"}`), time.Minute); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, ok, _ := d.GetCall(ctx, "call-1")
	if !ok || string(b) != `{"id":"call-1"}` {
		t.Fatalf("expected cached snapshot")
	}

	*now = now.Add(2 * time.Minute)
	if _, ok, _ := d.GetCall(ctx, "call-1"); ok {
		t.Fatalf("expected snapshot to expire")
	}
}
