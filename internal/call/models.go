package call

import "time"

// Type is the media kind of a call. Values are part of the wire protocol.
type Type string

const (
	TypeAudio Type = "AUDIO"
	TypeVideo Type = "VIDEO"
)

func ParseType(v string) (Type, bool) {
	switch Type(v) {
	case TypeAudio, TypeVideo:
		return Type(v), true
	default:
		return "", false
	}
}

// Status is the lifecycle state of a call session. Values are stored in
// Postgres and cached in the directory; keep them stable.
type Status string

const (
	StatusInitiating Status = "INITIATING"
	StatusRinging    Status = "RINGING"
	StatusAnswered   Status = "ANSWERED"
	StatusEnded      Status = "ENDED"
	StatusRejected   Status = "REJECTED"
	StatusMissed     Status = "MISSED"
	StatusFailed     Status = "FAILED"
	StatusBusy       Status = "BUSY"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusEnded, StatusRejected, StatusMissed, StatusFailed, StatusBusy:
		return true
	default:
		return false
	}
}

// canTransitionTo encodes the call state machine:
//
//	INITIATING → RINGING → ANSWERED → {ENDED, FAILED, BUSY}
//	{INITIATING, RINGING} → REJECTED | MISSED
//	any non-terminal → FAILED | ENDED (teardown on disconnect/cancel)
func (s Status) canTransitionTo(to Status) bool {
	if s.Terminal() {
		return false
	}
	switch to {
	case StatusFailed, StatusEnded:
		return true
	case StatusRinging:
		return s == StatusInitiating
	case StatusAnswered:
		return s == StatusRinging
	case StatusRejected, StatusMissed:
		return s == StatusInitiating || s == StatusRinging
	case StatusBusy:
		return s == StatusAnswered
	default:
		return false
	}
}

// Session is the aggregate record of one call attempt.
//
// Mutation rules:
// - Status changes only through the state machine in Service.UpdateStatus.
// - Every transition is persisted write-through; the directory cache holds
//   a snapshot with a status-dependent TTL while the call is non-terminal.
//
// Invariant (best-effort, enforced via the directory pair guard): a user has
// at most one non-terminal Session at a time.
type Session struct {
	ID string `json:"id" db:"id"`

	CallerID     string `json:"callerId" db:"caller_id"`
	CallerName   string `json:"callerName" db:"caller_name"`
	CallerAvatar string `json:"callerAvatar,omitempty" db:"caller_avatar"`

	ReceiverID     string `json:"receiverId" db:"receiver_id"`
	ReceiverName   string `json:"receiverName" db:"receiver_name"`
	ReceiverAvatar string `json:"receiverAvatar,omitempty" db:"receiver_avatar"`

	Type   Type   `json:"callType" db:"call_type"`
	Status Status `json:"status" db:"status"`

	ConversationID string `json:"conversationId" db:"conversation_id"`

	CallerSessionID   string `json:"callerSessionId" db:"caller_session_id"`
	ReceiverSessionID string `json:"receiverSessionId,omitempty" db:"receiver_session_id"`

	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	StartTime *time.Time `json:"startTime,omitempty" db:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" db:"end_time"`

	// DurationSeconds is derived as endTime - startTime on terminal
	// transitions; zero when the call was never answered.
	DurationSeconds int    `json:"duration" db:"duration"`
	EndReason       string `json:"endReason,omitempty" db:"end_reason"`
}

func (s Session) participantIDs() []string {
	return []string{s.CallerID, s.ReceiverID}
}
