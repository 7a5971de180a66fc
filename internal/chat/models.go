package chat

import "time"

// MessageType distinguishes plain text from attachment-bearing messages.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeMedia MessageType = "MEDIA"
)

// Attachment is an opaque reference to uploaded media; the upload pipeline
// lives elsewhere in the platform.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Message is one persisted chat message. Wire payloads for message_sent /
// message_received are rendered straight from this shape.
type Message struct {
	ID             string       `json:"id" db:"id"`
	ConversationID string       `json:"conversationId" db:"conversation_id"`
	Content        string       `json:"message" db:"content"`
	Type           MessageType  `json:"messageType" db:"message_type"`
	SenderID       string       `json:"sender" db:"sender_id"`
	Attachments    []Attachment `json:"attachments,omitempty" db:"-"`
	CreatedAt      time.Time    `json:"createdDate" db:"created_at"`
}

// Conversation is the two-party container this core operates on.
// Group conversations are a different subsystem.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
}

// Counterpart returns the other participant of a two-party conversation.
func (c Conversation) Counterpart(userID string) (string, bool) {
	if len(c.Participants) != 2 {
		return "", false
	}
	switch userID {
	case c.Participants[0]:
		return c.Participants[1], true
	case c.Participants[1]:
		return c.Participants[0], true
	default:
		return "", false
	}
}
