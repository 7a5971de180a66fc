package call

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the durable call-session store.
//
// Implementations must order ListByParticipant by created_at descending
// and treat page as 1-based.
type Repository interface {
	Create(ctx context.Context, s Session) error
	Update(ctx context.Context, s Session) error
	GetByID(ctx context.Context, id string) (Session, bool, error)
	ListByParticipant(ctx context.Context, userID string, page, size int) ([]Session, error)
	CountByParticipantStatus(ctx context.Context, userID string, status Status) (int64, error)
	ActiveByParticipant(ctx context.Context, userID string) (Session, bool, error)

	// ListStaleRinging returns ids of calls still INITIATING/RINGING whose
	// created_at is before cutoff. Used by the ring-timeout sweeper.
	ListStaleRinging(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// PostgresRepo implements Repository on the platform's Postgres.
//
// Assumed table:
//
//	call_sessions (
//	  id, caller_id, caller_name, caller_avatar,
//	  receiver_id, receiver_name, receiver_avatar,
//	  call_type, status, conversation_id,
//	  caller_session_id, receiver_session_id,
//	  created_at, start_time, end_time, duration, end_reason
//	)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	return &PostgresRepo{db: db}, nil
}

const sessionColumns = `
id, caller_id, caller_name, caller_avatar,
receiver_id, receiver_name, receiver_avatar,
call_type, status, conversation_id,
caller_session_id, receiver_session_id,
created_at, start_time, end_time, duration, end_reason
`

func (r *PostgresRepo) Create(ctx context.Context, s Session) error {
	const q = `
INSERT INTO call_sessions (` + sessionColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.CallerID, s.CallerName, s.CallerAvatar,
		s.ReceiverID, s.ReceiverName, s.ReceiverAvatar,
		s.Type, s.Status, s.ConversationID,
		s.CallerSessionID, nullable(s.ReceiverSessionID),
		s.CreatedAt, s.StartTime, s.EndTime, s.DurationSeconds, nullable(s.EndReason),
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, s Session) error {
	const q = `
UPDATE call_sessions
SET status = $2,
    receiver_session_id = $3,
    start_time = $4,
    end_time = $5,
    duration = $6,
    end_reason = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.Status,
		nullable(s.ReceiverSessionID),
		s.StartTime,
		s.EndTime,
		s.DurationSeconds,
		nullable(s.EndReason),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Session, bool, error) {
	const q = `SELECT ` + sessionColumns + ` FROM call_sessions WHERE id = $1`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) ListByParticipant(ctx context.Context, userID string, page, size int) ([]Session, error) {
	if page < 1 {
		page = 1
	}
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE caller_id = $1 OR receiver_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	rows, err := r.db.QueryContext(ctx, q, userID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountByParticipantStatus(ctx context.Context, userID string, status Status) (int64, error) {
	const q = `
SELECT COUNT(*)
FROM call_sessions
WHERE receiver_id = $1 AND status = $2
`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, userID, status).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) ActiveByParticipant(ctx context.Context, userID string) (Session, bool, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE (caller_id = $1 OR receiver_id = $1)
  AND status IN ('INITIATING','RINGING','ANSWERED')
ORDER BY created_at DESC
LIMIT 1
`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRepo) ListStaleRinging(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const q = `
SELECT id
FROM call_sessions
WHERE status IN ('INITIATING','RINGING') AND created_at < $1
ORDER BY created_at
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var receiverSession, endReason sql.NullString
	err := row.Scan(
		&s.ID,
		&s.CallerID, &s.CallerName, &s.CallerAvatar,
		&s.ReceiverID, &s.ReceiverName, &s.ReceiverAvatar,
		&s.Type, &s.Status, &s.ConversationID,
		&s.CallerSessionID, &receiverSession,
		&s.CreatedAt, &s.StartTime, &s.EndTime, &s.DurationSeconds, &endReason,
	)
	if err != nil {
		return Session{}, err
	}
	s.ReceiverSessionID = receiverSession.String
	s.EndReason = endReason.String
	return s, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
