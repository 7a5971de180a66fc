package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"chat-platform/internal/apperr"
)

// Outbound error event names.
const (
	eventError       = "error"
	eventWebRTCError = "webrtc:error"
)

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HandlerFunc processes one inbound event on behalf of a session. A
// returned error is converted at the dispatch boundary; handlers never
// write error events themselves.
type HandlerFunc func(ctx context.Context, sess *Session, data json.RawMessage) error

// Router is the registered command table mapping event names to handlers.
// Registration happens once at construction time; dispatch is read-only
// and safe for concurrent use.
type Router struct {
	handlers map[string]HandlerFunc
	log      *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{handlers: make(map[string]HandlerFunc), log: log}
}

func (r *Router) Handle(event string, fn HandlerFunc) {
	if _, dup := r.handlers[event]; dup {
		panic(fmt.Sprintf("duplicate handler for %q", event))
	}
	r.handlers[event] = fn
}

// Dispatch runs the handler for one frame inside the uniform error
// boundary: domain errors become a {code, message} error event back to the
// origin session, panics and unexpected errors map to the generic internal
// code. No event is silently dropped.
func (r *Router) Dispatch(ctx context.Context, sess *Session, f Frame) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("handler panic", "event", f.Event, "session_id", sess.ID, "panic", p)
			r.reply(sess, f.Event, apperr.New(apperr.CodeInternal, "internal error"))
		}
	}()

	fn, ok := r.handlers[f.Event]
	if !ok {
		r.reply(sess, f.Event, apperr.Validation(fmt.Sprintf("unknown event %q", f.Event)))
		return
	}

	if err := fn(ctx, sess, f.Data); err != nil {
		ae := apperr.From(err)
		if ae.Code == apperr.CodeInternal {
			r.log.Error("handler failed", "event", f.Event, "session_id", sess.ID, "err", err)
		} else {
			r.log.Debug("handler rejected", "event", f.Event, "session_id", sess.ID, "code", ae.Code)
		}
		r.reply(sess, f.Event, ae)
	}
}

func (r *Router) reply(sess *Session, inboundEvent string, ae *apperr.Error) {
	name := eventError
	if strings.HasPrefix(inboundEvent, "webrtc:") {
		name = eventWebRTCError
	}
	if err := sess.enqueue(name, errorPayload{Code: string(ae.Code), Message: ae.Message}); err != nil {
		r.log.Debug("error reply dropped", "session_id", sess.ID, "err", err)
	}
}
