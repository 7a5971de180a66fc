package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chat-platform/internal/apperr"
	"chat-platform/internal/directory"

	"github.com/google/uuid"
)

// Outbound event names owned by the message pipeline.
const (
	EventMessageSent     = "message_sent"
	EventMessageReceived = "message_received"
	EventTyping          = "typing"
)

// TypingPayload is forwarded to the counterpart verbatim plus the sender.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
	From           string `json:"from"`
}

// Sender delivers one outbound event to one live session.
type Sender interface {
	Send(ctx context.Context, sessionID, event string, payload any) error
}

// Service is the message delivery pipeline: dedup plus two-party fan-out.
type Service struct {
	repo   Repository
	dir    directory.Directory
	sender Sender
	log    *slog.Logger

	dedupTTL time.Duration
	clock    func() time.Time
}

func NewService(repo Repository, dir directory.Directory, sender Sender, log *slog.Logger, dedupTTL time.Duration) *Service {
	if log == nil {
		log = slog.Default()
	}
	if dedupTTL <= 0 {
		dedupTTL = 3 * time.Second
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		sender:   sender,
		log:      log,
		dedupTTL: dedupTTL,
		clock:    time.Now,
	}
}

type SendMessageRequest struct {
	ConversationID string
	Content        string
	Attachments    []Attachment

	// EphemeralID is the client-generated message id used for dedup; it is
	// never the persisted id.
	EphemeralID string
	SenderID    string
}

// SendMessage persists one message at most once per dedup window and fans
// it out: message_sent to the sender's own sessions (multi-device echo),
// message_received to the counterpart's sessions.
func (s *Service) SendMessage(ctx context.Context, req SendMessageRequest) (Message, error) {
	if req.ConversationID == "" {
		return Message{}, apperr.Validation("conversationId is required")
	}
	if req.EphemeralID == "" {
		return Message{}, apperr.Validation("messageId is required")
	}
	if req.SenderID == "" {
		return Message{}, apperr.Validation("sender is required")
	}
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return Message{}, apperr.Validation("message or attachments required")
	}

	dedupKey := req.ConversationID + ":" + req.EphemeralID
	fresh, err := s.dir.TryMarkProcessed(ctx, dedupKey, s.dedupTTL)
	if err != nil {
		return Message{}, fmt.Errorf("dedup check: %w", err)
	}
	if !fresh {
		return Message{}, apperr.Conflict("duplicate message")
	}

	conv, ok, err := s.repo.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return Message{}, fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return Message{}, apperr.NotFound("conversation not found")
	}
	receiverID, ok := conv.Counterpart(req.SenderID)
	if !ok {
		return Message{}, apperr.Validation("sender is not a participant")
	}

	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Type:           messageType(req),
		SenderID:       req.SenderID,
		Attachments:    req.Attachments,
		CreatedAt:      s.clock().UTC(),
	}
	if err := s.repo.SaveMessage(ctx, msg); err != nil {
		return Message{}, fmt.Errorf("persist message: %w", err)
	}

	s.fanOut(ctx, req.SenderID, EventMessageSent, msg)
	s.fanOut(ctx, receiverID, EventMessageReceived, msg)
	return msg, nil
}

// Typing relays a typing indicator to the counterpart's sessions. Never
// persisted, never deduplicated.
func (s *Service) Typing(ctx context.Context, senderID, conversationID string, isTyping bool) error {
	if conversationID == "" {
		return apperr.Validation("conversationId is required")
	}
	conv, ok, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if !ok {
		return apperr.NotFound("conversation not found")
	}
	receiverID, ok := conv.Counterpart(senderID)
	if !ok {
		return apperr.Validation("sender is not a participant")
	}

	s.fanOut(ctx, receiverID, EventTyping, TypingPayload{
		ConversationID: conversationID,
		IsTyping:       isTyping,
		From:           senderID,
	})
	return nil
}

// fanOut delivers the event to every live session of the user. Delivery
// failures to individual sessions are logged, not propagated.
func (s *Service) fanOut(ctx context.Context, userID, event string, payload any) {
	sessions, err := s.dir.SessionsOf(ctx, userID)
	if err != nil {
		s.log.Warn("session lookup failed", "user_id", userID, "event", event, "err", err)
		return
	}
	for _, sid := range sessions {
		if err := s.sender.Send(ctx, sid, event, payload); err != nil {
			s.log.Debug("fan-out delivery failed", "session_id", sid, "event", event, "err", err)
		}
	}
}

func messageType(req SendMessageRequest) MessageType {
	if len(req.Attachments) > 0 {
		return MessageTypeMedia
	}
	return MessageTypeText
}
