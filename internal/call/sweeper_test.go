package call

import (
	"context"
	"testing"
	"time"
)

func TestSweep_FinalizesStaleRinging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	// A ring that outlived its window: cached snapshot expired, durable
	// record still RINGING.
	_ = env.repo.Create(ctx, Session{
		ID: "stale", CallerID: "alice", ReceiverID: "bob",
		Status: StatusRinging, CreatedAt: env.now.Add(-5 * time.Minute),
	})
	// A fresh ring that must be left alone.
	_ = env.repo.Create(ctx, Session{
		ID: "fresh", CallerID: "carol", ReceiverID: "dave",
		Status: StatusRinging, CreatedAt: *env.now,
	})

	sw := NewSweeper(env.svc, env.repo, nil, time.Second, time.Minute)
	sw.clock = env.svc.clock
	sw.Sweep(ctx)

	stale, _, _ := env.repo.GetByID(ctx, "stale")
	if stale.Status != StatusMissed {
		t.Fatalf("expected stale ring finalized to MISSED, got %s", stale.Status)
	}
	if stale.EndTime == nil {
		t.Fatalf("expected endTime stamped")
	}
	fresh, _, _ := env.repo.GetByID(ctx, "fresh")
	if fresh.Status != StatusRinging {
		t.Fatalf("fresh ring must not be touched, got %s", fresh.Status)
	}

	if n, ok, _ := env.dir.GetMissedCalls(ctx, "bob"); !ok || n != 1 {
		t.Fatalf("expected missed counter bumped, got %d ok=%v", n, ok)
	}
}

func TestSweep_IgnoresRacedFinalization(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_ = env.repo.Create(ctx, Session{
		ID: "done", CallerID: "alice", ReceiverID: "bob",
		Status: StatusEnded, CreatedAt: env.now.Add(-5 * time.Minute),
	})

	sw := NewSweeper(env.svc, env.repo, nil, time.Second, time.Minute)
	sw.clock = env.svc.clock
	// Terminal rows are not selected; a racer finalizing between scan and
	// transition surfaces as NotFound and is swallowed.
	sw.Sweep(ctx)

	got, _, _ := env.repo.GetByID(ctx, "done")
	if got.Status != StatusEnded {
		t.Fatalf("terminal call must not change, got %s", got.Status)
	}
}
