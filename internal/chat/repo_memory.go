package chat

import (
	"context"
	"sync"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu            sync.Mutex
	messages      []Message
	conversations map[string]Conversation
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{conversations: make(map[string]Conversation)}
}

func (r *MemoryRepo) SaveMessage(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return nil
}

func (r *MemoryRepo) GetConversation(_ context.Context, id string) (Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	return c, ok, nil
}

// PutConversation seeds a conversation for tests.
func (r *MemoryRepo) PutConversation(c Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID] = c
}

// Messages returns a copy of all saved messages.
func (r *MemoryRepo) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
