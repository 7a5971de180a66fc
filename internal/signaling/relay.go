package signaling

import (
	"context"
	"log/slog"

	"chat-platform/internal/apperr"
	"chat-platform/internal/directory"
)

// Inbound/outbound event names relayed verbatim.
const (
	EventOffer        = "webrtc:offer"
	EventAnswer       = "webrtc:answer"
	EventICECandidate = "webrtc:ice-candidate"
	EventError        = "webrtc:error"
)

// Sender delivers one outbound event to one live session.
type Sender interface {
	Send(ctx context.Context, sessionID, event string, payload any) error
}

// Relay forwards peer-negotiation payloads between users. It is stateless
// and never inspects or transforms the negotiation content beyond
// annotating the sender.
type Relay struct {
	dir    directory.Directory
	sender Sender
	log    *slog.Logger
}

func New(dir directory.Directory, sender Sender, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{dir: dir, sender: sender, log: log}
}

// Forward delivers the payload, annotated with the sending user id under
// "from", to every live session of toUserID (multi-device fan-out). A peer
// with zero live sessions yields a NotFound error for the sender.
func (r *Relay) Forward(ctx context.Context, event, fromUserID, toUserID string, payload map[string]any) error {
	if toUserID == "" {
		return apperr.Validation("to is required")
	}

	sessions, err := r.dir.SessionsOf(ctx, toUserID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return apperr.NotFound("peer not found")
	}

	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["from"] = fromUserID

	for _, sid := range sessions {
		if err := r.sender.Send(ctx, sid, event, out); err != nil {
			r.log.Debug("relay delivery failed", "session_id", sid, "event", event, "err", err)
		}
	}
	return nil
}
