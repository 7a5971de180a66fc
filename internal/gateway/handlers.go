package gateway

import (
	"context"
	"encoding/json"

	"chat-platform/internal/apperr"
	"chat-platform/internal/call"
	"chat-platform/internal/chat"
	"chat-platform/internal/signaling"
)

// Inbound event vocabulary.
const (
	eventSendMessage  = "send_message"
	eventTyping       = "typing"
	eventCallInitiate = "call:initiate"
	eventCallAnswer   = "call:answer"
	eventCallReject   = "call:reject"
	eventCallEnd      = "call:end"
)

func (g *Gateway) registerHandlers() {
	g.router.Handle(eventSendMessage, g.handleSendMessage)
	g.router.Handle(eventTyping, g.handleTyping)
	g.router.Handle(eventCallInitiate, g.handleCallInitiate)
	g.router.Handle(eventCallAnswer, g.handleCallAnswer)
	g.router.Handle(eventCallReject, g.handleCallReject)
	g.router.Handle(eventCallEnd, g.handleCallEnd)
	g.router.Handle(signaling.EventOffer, g.handleWebRTC(signaling.EventOffer))
	g.router.Handle(signaling.EventAnswer, g.handleWebRTC(signaling.EventAnswer))
	g.router.Handle(signaling.EventICECandidate, g.handleWebRTC(signaling.EventICECandidate))
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return apperr.Validation("payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperr.Validation("malformed payload")
	}
	return nil
}

func (g *Gateway) handleSendMessage(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		ConversationID string            `json:"conversationId"`
		Message        string            `json:"message"`
		MessageID      string            `json:"messageId"`
		Attachments    []chat.Attachment `json:"attachments"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := g.chat.SendMessage(ctx, chat.SendMessageRequest{
		ConversationID: req.ConversationID,
		Content:        req.Message,
		Attachments:    req.Attachments,
		EphemeralID:    req.MessageID,
		SenderID:       sess.UserID,
	})
	return err
}

func (g *Gateway) handleTyping(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		ConversationID string `json:"conversationId"`
		IsTyping       bool   `json:"isTyping"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	return g.chat.Typing(ctx, sess.UserID, req.ConversationID, req.IsTyping)
}

func (g *Gateway) handleCallInitiate(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		CallerID       string `json:"callerId"`
		CallerName     string `json:"callerName"`
		CallerAvatar   string `json:"callerAvatar"`
		ReceiverID     string `json:"receiverId"`
		ReceiverName   string `json:"receiverName"`
		ReceiverAvatar string `json:"receiverAvatar"`
		CallType       string `json:"callType"`
		ConversationID string `json:"conversationId"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	// The connection's authenticated identity is authoritative over the
	// payload's callerId.
	if req.CallerID != "" && req.CallerID != sess.UserID {
		return apperr.Validation("callerId does not match session")
	}
	_, err := g.calls.Initiate(ctx, call.InitiateRequest{
		CallerID:        sess.UserID,
		CallerName:      req.CallerName,
		CallerAvatar:    req.CallerAvatar,
		ReceiverID:      req.ReceiverID,
		ReceiverName:    req.ReceiverName,
		ReceiverAvatar:  req.ReceiverAvatar,
		Type:            call.Type(req.CallType),
		ConversationID:  req.ConversationID,
		CallerSessionID: sess.ID,
	})
	return err
}

func (g *Gateway) handleCallAnswer(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		CallID string `json:"callId"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := g.calls.Answer(ctx, req.CallID, sess.ID)
	return err
}

func (g *Gateway) handleCallReject(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		CallID string `json:"callId"`
		Reason string `json:"reason"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := g.calls.Reject(ctx, req.CallID, sess.ID, req.Reason)
	return err
}

func (g *Gateway) handleCallEnd(ctx context.Context, sess *Session, data json.RawMessage) error {
	var req struct {
		CallID string `json:"callId"`
	}
	if err := decode(data, &req); err != nil {
		return err
	}
	_, err := g.calls.End(ctx, req.CallID)
	return err
}

// handleWebRTC relays negotiation payloads opaquely; only the "to" field
// is interpreted, everything else passes through untouched.
func (g *Gateway) handleWebRTC(event string) HandlerFunc {
	return func(ctx context.Context, sess *Session, data json.RawMessage) error {
		var payload map[string]any
		if err := decode(data, &payload); err != nil {
			return err
		}
		to, _ := payload["to"].(string)
		if to == "" {
			return apperr.Validation("to is required")
		}
		return g.relay.Forward(ctx, event, sess.UserID, to, payload)
	}
}
