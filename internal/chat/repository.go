package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
)

// Repository is the durable message-store collaborator: message
// persistence plus conversation lookup with participant list.
type Repository interface {
	SaveMessage(ctx context.Context, m Message) error
	GetConversation(ctx context.Context, id string) (Conversation, bool, error)
}

// PostgresRepo implements Repository on the platform's Postgres.
//
// Assumed tables:
//
//	messages (id, conversation_id, sender_id, content, message_type, attachments jsonb, created_at)
//	conversations (id, participant_a, participant_b)
//
// Conversations are exactly two-party in this core, hence two columns
// rather than an array.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) SaveMessage(ctx context.Context, m Message) error {
	const q = `
INSERT INTO messages (id, conversation_id, sender_id, content, message_type, attachments, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	var attachments any
	if len(m.Attachments) > 0 {
		b, err := json.Marshal(m.Attachments)
		if err != nil {
			return err
		}
		attachments = b
	}
	_, err := r.db.ExecContext(ctx, q,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Type, attachments, m.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) GetConversation(ctx context.Context, id string) (Conversation, bool, error) {
	const q = `SELECT id, participant_a, participant_b FROM conversations WHERE id = $1`
	var c Conversation
	var a, b string
	err := r.db.QueryRowContext(ctx, q, id).Scan(&c.ID, &a, &b)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, false, nil
	}
	if err != nil {
		return Conversation{}, false, err
	}
	c.Participants = []string{a, b}
	return c, true, nil
}
