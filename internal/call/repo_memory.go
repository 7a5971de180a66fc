package call

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]Session)}
}

func (r *MemoryRepo) Create(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) Update(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok, nil
}

func (r *MemoryRepo) ListByParticipant(_ context.Context, userID string, page, size int) ([]Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if page < 1 {
		page = 1
	}
	var all []Session
	for _, s := range r.sessions {
		if s.CallerID == userID || s.ReceiverID == userID {
			all = append(all, s)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := (page - 1) * size
	if start >= len(all) {
		return nil, nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (r *MemoryRepo) CountByParticipantStatus(_ context.Context, userID string, status Status) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.ReceiverID == userID && s.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) ActiveByParticipant(_ context.Context, userID string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best Session
	var found bool
	for _, s := range r.sessions {
		if s.Status.Terminal() {
			continue
		}
		if s.CallerID != userID && s.ReceiverID != userID {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func (r *MemoryRepo) ListStaleRinging(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, s := range r.sessions {
		if (s.Status == StatusInitiating || s.Status == StatusRinging) && s.CreatedAt.Before(cutoff) {
			ids = append(ids, s.ID)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}
