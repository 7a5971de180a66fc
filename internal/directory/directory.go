package directory

import (
	"context"
	"time"
)

// Directory is the shared presence and routing state for all gateway
// processes. Implementations must be safe for concurrent callers from
// multiple processes; entries are TTL-bound and there is no background
// reaper — expiry and explicit deregistration are the only cleanup paths.
//
// Call snapshots and history pages are stored as opaque bytes; the call
// package owns their encoding.
type Directory interface {
	// Presence. One user may hold many concurrent sessions (multi-device).
	Register(ctx context.Context, userID, sessionID string, ttl time.Duration) error
	Deregister(ctx context.Context, userID, sessionID string) error
	SessionsOf(ctx context.Context, userID string) ([]string, error)
	IsOnline(ctx context.Context, userID string) (bool, error)

	// Call snapshot cache.
	CacheCall(ctx context.Context, callID string, snapshot []byte, ttl time.Duration) error
	GetCall(ctx context.Context, callID string) ([]byte, bool, error)
	ClearCall(ctx context.Context, callID string, participantIDs []string) error

	// In-call markers.
	MarkInCall(ctx context.Context, userID, callID string, ttl time.Duration) error
	// MarkPairInCall marks both participants in-call only if neither already
	// is. Returns false without side effects when either marker exists.
	MarkPairInCall(ctx context.Context, userA, userB, callID string, ttl time.Duration) (bool, error)
	InCallOf(ctx context.Context, userID string) (string, bool, error)
	IsInCall(ctx context.Context, userID string) (bool, error)

	// TryMarkProcessed is an atomic set-if-absent. It returns false if the
	// key already exists (duplicate) and true if newly set.
	TryMarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Missed-call counters, cache-first with durable fallback at the caller.
	IncrMissedCalls(ctx context.Context, userID string) (int64, error)
	SetMissedCalls(ctx context.Context, userID string, n int64) error
	GetMissedCalls(ctx context.Context, userID string) (int64, bool, error)

	// Call-history page cache, keyed per (user, page, size) by the caller.
	CachePage(ctx context.Context, key string, page []byte, ttl time.Duration) error
	GetPage(ctx context.Context, key string) ([]byte, bool, error)
}

const (
	keyPresence = "chat:presence:"
	keyCall     = "chat:call:"
	keyInCall   = "chat:incall:"
	keyDedup    = "chat:dedup:"
	keyMissed   = "chat:missed:"
	keyPage     = "chat:page:"
)
