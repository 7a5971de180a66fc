package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is an in-process Directory useful for tests.
// It honors TTLs against an injectable clock but shares nothing across
// processes, so it must never back a multi-instance deployment.
type MemoryDirectory struct {
	mu sync.Mutex

	clock func() time.Time

	presence map[string]map[string]time.Time // userID -> sessionID -> expiry
	calls    map[string]expiringBytes
	inCall   map[string]expiringString
	dedup    map[string]time.Time
	missed   map[string]int64
	pages    map[string]expiringBytes
}

type expiringBytes struct {
	val    []byte
	expiry time.Time
}

type expiringString struct {
	val    string
	expiry time.Time
}

func NewMemory() *MemoryDirectory {
	return &MemoryDirectory{
		clock:    time.Now,
		presence: make(map[string]map[string]time.Time),
		calls:    make(map[string]expiringBytes),
		inCall:   make(map[string]expiringString),
		dedup:    make(map[string]time.Time),
		missed:   make(map[string]int64),
		pages:    make(map[string]expiringBytes),
	}
}

// SetClock overrides the time source for TTL tests.
func (d *MemoryDirectory) SetClock(clock func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock = clock
}

func (d *MemoryDirectory) Register(_ context.Context, userID, sessionID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.presence[userID]
	if !ok {
		set = make(map[string]time.Time)
		d.presence[userID] = set
	}
	exp := d.clock().Add(ttl)
	// Registration refreshes the TTL of every live session of the user,
	// matching the EXPIRE-on-the-whole-set behavior of the redis backend.
	for sid := range set {
		set[sid] = exp
	}
	set[sessionID] = exp
	return nil
}

func (d *MemoryDirectory) Deregister(_ context.Context, userID, sessionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if set, ok := d.presence[userID]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(d.presence, userID)
		}
	}
	return nil
}

func (d *MemoryDirectory) SessionsOf(_ context.Context, userID string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	var out []string
	for sid, exp := range d.presence[userID] {
		if exp.After(now) {
			out = append(out, sid)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) IsOnline(ctx context.Context, userID string) (bool, error) {
	sids, err := d.SessionsOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return len(sids) > 0, nil
}

func (d *MemoryDirectory) CacheCall(_ context.Context, callID string, snapshot []byte, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	d.calls[callID] = expiringBytes{val: cp, expiry: d.clock().Add(ttl)}
	return nil
}

func (d *MemoryDirectory) GetCall(_ context.Context, callID string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.calls[callID]
	if !ok || !e.expiry.After(d.clock()) {
		return nil, false, nil
	}
	return e.val, true, nil
}

func (d *MemoryDirectory) ClearCall(_ context.Context, callID string, participantIDs []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.calls, callID)
	for _, id := range participantIDs {
		delete(d.inCall, id)
	}
	return nil
}

func (d *MemoryDirectory) MarkInCall(_ context.Context, userID, callID string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inCall[userID] = expiringString{val: callID, expiry: d.clock().Add(ttl)}
	return nil
}

func (d *MemoryDirectory) MarkPairInCall(_ context.Context, userA, userB, callID string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	if e, ok := d.inCall[userA]; ok && e.expiry.After(now) {
		return false, nil
	}
	if e, ok := d.inCall[userB]; ok && e.expiry.After(now) {
		return false, nil
	}
	exp := now.Add(ttl)
	d.inCall[userA] = expiringString{val: callID, expiry: exp}
	d.inCall[userB] = expiringString{val: callID, expiry: exp}
	return true, nil
}

func (d *MemoryDirectory) InCallOf(_ context.Context, userID string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.inCall[userID]
	if !ok || !e.expiry.After(d.clock()) {
		return "", false, nil
	}
	return e.val, true, nil
}

func (d *MemoryDirectory) IsInCall(ctx context.Context, userID string) (bool, error) {
	_, ok, err := d.InCallOf(ctx, userID)
	return ok, err
}

func (d *MemoryDirectory) TryMarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock()
	if exp, ok := d.dedup[key]; ok && exp.After(now) {
		return false, nil
	}
	d.dedup[key] = now.Add(ttl)
	return true, nil
}

func (d *MemoryDirectory) IncrMissedCalls(_ context.Context, userID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missed[userID]++
	return d.missed[userID], nil
}

func (d *MemoryDirectory) SetMissedCalls(_ context.Context, userID string, n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missed[userID] = n
	return nil
}

func (d *MemoryDirectory) GetMissedCalls(_ context.Context, userID string) (int64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.missed[userID]
	return n, ok, nil
}

func (d *MemoryDirectory) CachePage(_ context.Context, key string, page []byte, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(page))
	copy(cp, page)
	d.pages[key] = expiringBytes{val: cp, expiry: d.clock().Add(ttl)}
	return nil
}

func (d *MemoryDirectory) GetPage(_ context.Context, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.pages[key]
	if !ok || !e.expiry.After(d.clock()) {
		return nil, false, nil
	}
	return e.val, true, nil
}
