package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-platform/internal/apperr"
	"chat-platform/internal/directory"
	"chat-platform/internal/notify"

	"github.com/google/uuid"
)

// Outbound event names owned by the call lifecycle.
const (
	EventInitiated     = "call:initiated"
	EventIncoming      = "call:incoming"
	EventAnswerSuccess = "call:answer:success"
	EventAnswered      = "call:answered"
	EventRejectSuccess = "call:reject:success"
	EventRejected      = "call:rejected"
	EventEnded         = "call:ended"
	EventFailed        = "call:failed"
)

type InitiatedPayload struct {
	CallID string `json:"callId"`
}

type IncomingPayload struct {
	CallID       string `json:"callId"`
	CallerID     string `json:"callerId"`
	CallerName   string `json:"callerName"`
	CallerAvatar string `json:"callerAvatar"`
	CallType     Type   `json:"callType"`
}

type AnsweredPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

type AnswerSuccessPayload struct {
	CallID string `json:"callId"`
}

type RejectedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

type EndedPayload struct {
	CallID   string `json:"callId"`
	Duration int    `json:"duration"`
}

type FailedPayload struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

// Sender delivers one outbound event to one live session. The gateway
// implements this over its local websocket connections; delivery to a
// session owned by another process is that process's concern.
type Sender interface {
	Send(ctx context.Context, sessionID, event string, payload any) error
}

// Config carries the lifecycle timing knobs.
type Config struct {
	RingTTL         time.Duration
	ActiveTTL       time.Duration
	AnswerDelay     time.Duration
	HistoryCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.RingTTL <= 0 {
		out.RingTTL = 60 * time.Second
	}
	if out.ActiveTTL <= 0 {
		out.ActiveTTL = time.Hour
	}
	if out.AnswerDelay <= 0 {
		out.AnswerDelay = 800 * time.Millisecond
	}
	if out.HistoryCacheTTL <= 0 {
		out.HistoryCacheTTL = time.Minute
	}
	return out
}

// Service owns the call state machine. It combines directory caching with
// the durable store (write-through on every transition) and the
// notification collaborator (fire-and-forget).
type Service struct {
	repo     Repository
	dir      directory.Directory
	sender   Sender
	notifier notify.Notifier
	log      *slog.Logger
	cfg      Config

	// clock and schedule are injectable for deterministic tests.
	clock    func() time.Time
	schedule func(d time.Duration, fn func())
}

func NewService(repo Repository, dir directory.Directory, sender Sender, notifier notify.Notifier, log *slog.Logger, cfg Config) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:     repo,
		dir:      dir,
		sender:   sender,
		notifier: notifier,
		log:      log,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		schedule: func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

type InitiateRequest struct {
	CallerID     string
	CallerName   string
	CallerAvatar string

	ReceiverID     string
	ReceiverName   string
	ReceiverAvatar string

	Type           Type
	ConversationID string

	// CallerSessionID is the session the call:initiate event arrived on;
	// caller-facing lifecycle events go back to it.
	CallerSessionID string
}

func (r InitiateRequest) validate() error {
	switch {
	case r.CallerID == "":
		return apperr.Validation("callerId is required")
	case r.ReceiverID == "":
		return apperr.Validation("receiverId is required")
	case r.CallerID == r.ReceiverID:
		return apperr.Validation("cannot call yourself")
	case r.CallerName == "":
		return apperr.Validation("callerName is required")
	case r.ConversationID == "":
		return apperr.Validation("conversationId is required")
	case r.CallerSessionID == "":
		return apperr.Validation("origin session is required")
	}
	if _, ok := ParseType(string(r.Type)); !ok {
		return apperr.Validation("callType must be AUDIO or VIDEO")
	}
	return nil
}

// Initiate starts a new call attempt.
//
// The "both parties free" guard and the in-call marking are one atomic
// directory operation, so two racing initiations involving the same user
// cannot both pass. Receiver-unreachable outcomes (MISSED/FAILED) are
// resolved here and reported to the caller via call:failed; they are not
// surfaced as handler errors.
func (s *Service) Initiate(ctx context.Context, req InitiateRequest) (Session, error) {
	if err := req.validate(); err != nil {
		return Session{}, err
	}

	now := s.clock().UTC()
	sess := Session{
		ID:              uuid.NewString(),
		CallerID:        req.CallerID,
		CallerName:      req.CallerName,
		CallerAvatar:    req.CallerAvatar,
		ReceiverID:      req.ReceiverID,
		ReceiverName:    req.ReceiverName,
		ReceiverAvatar:  req.ReceiverAvatar,
		Type:            req.Type,
		Status:          StatusInitiating,
		ConversationID:  req.ConversationID,
		CallerSessionID: req.CallerSessionID,
		CreatedAt:       now,
	}

	ok, err := s.dir.MarkPairInCall(ctx, req.CallerID, req.ReceiverID, sess.ID, s.cfg.RingTTL)
	if err != nil {
		return Session{}, fmt.Errorf("in-call guard: %w", err)
	}
	if !ok {
		return Session{}, apperr.Conflict("participant already in a call")
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		_ = s.dir.ClearCall(ctx, sess.ID, sess.participantIDs())
		return Session{}, fmt.Errorf("persist call: %w", err)
	}
	if err := s.cacheSnapshot(ctx, sess, s.cfg.RingTTL); err != nil {
		s.log.Warn("call snapshot cache failed", "call_id", sess.ID, "err", err)
	}

	s.send(ctx, req.CallerSessionID, EventInitiated, InitiatedPayload{CallID: sess.ID})

	receiverSessions, err := s.dir.SessionsOf(ctx, req.ReceiverID)
	if err != nil {
		return s.failInitiation(ctx, sess, StatusFailed, "LOOKUP_FAILED", "could not resolve receiver")
	}
	if len(receiverSessions) == 0 {
		return s.failInitiation(ctx, sess, StatusMissed, "RECEIVER_OFFLINE", "receiver is not online")
	}

	incoming := IncomingPayload{
		CallID:       sess.ID,
		CallerID:     sess.CallerID,
		CallerName:   sess.CallerName,
		CallerAvatar: sess.CallerAvatar,
		CallType:     sess.Type,
	}
	delivered := 0
	for _, sid := range receiverSessions {
		if err := s.sender.Send(ctx, sid, EventIncoming, incoming); err != nil {
			s.log.Debug("incoming delivery failed", "call_id", sess.ID, "session_id", sid, "err", err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return s.failInitiation(ctx, sess, StatusMissed, "RECEIVER_UNREACHABLE", "receiver could not be reached")
	}

	return s.UpdateStatus(ctx, sess.ID, StatusRinging, "")
}

// failInitiation finalizes a call that never reached the receiver and
// tells the caller. The terminal transition is the source of truth; the
// caller-facing call:failed event is advisory.
func (s *Service) failInitiation(ctx context.Context, sess Session, terminal Status, code, reason string) (Session, error) {
	out, err := s.UpdateStatus(ctx, sess.ID, terminal, "")
	if err != nil {
		s.log.Error("failed-call finalization failed", "call_id", sess.ID, "status", terminal, "err", err)
		out = sess
	}
	s.send(ctx, sess.CallerSessionID, EventFailed, FailedPayload{Code: code, Reason: reason})
	return out, nil
}

// UpdateStatus applies one state-machine transition plus its side effects
// and persists the result write-through.
//
// Transition attempts on an already-terminal or absent call fail with
// NotFound rather than mutating state; concurrent racers are resolved by
// whichever reaches the transition first.
func (s *Service) UpdateStatus(ctx context.Context, callID string, next Status, counterpartSessionID string) (Session, error) {
	if callID == "" {
		return Session{}, apperr.Validation("callId is required")
	}

	sess, err := s.loadSession(ctx, callID)
	if err != nil {
		return Session{}, err
	}
	if sess.Status.Terminal() {
		return Session{}, apperr.NotFound("call already finished")
	}
	if !sess.Status.canTransitionTo(next) {
		return Session{}, apperr.Conflict(fmt.Sprintf("cannot transition %s to %s", sess.Status, next))
	}

	now := s.clock().UTC()
	sess.Status = next

	switch {
	case next == StatusRinging:
		if err := s.cacheSnapshot(ctx, sess, s.cfg.RingTTL); err != nil {
			s.log.Warn("call snapshot cache failed", "call_id", sess.ID, "err", err)
		}
		s.notifyAsync(ctx, func(ctx context.Context) error {
			return s.notifier.IncomingCall(ctx, sess.ReceiverID, sess.ID, sess.CallerName, string(sess.Type))
		})

	case next == StatusAnswered:
		sess.StartTime = &now
		if counterpartSessionID != "" {
			sess.ReceiverSessionID = counterpartSessionID
		}
		if err := s.cacheSnapshot(ctx, sess, s.cfg.ActiveTTL); err != nil {
			s.log.Warn("call snapshot cache failed", "call_id", sess.ID, "err", err)
		}
		// Extend both in-call markers to the active window.
		if err := s.dir.MarkInCall(ctx, sess.CallerID, sess.ID, s.cfg.ActiveTTL); err != nil {
			s.log.Warn("in-call refresh failed", "call_id", sess.ID, "user_id", sess.CallerID, "err", err)
		}
		if err := s.dir.MarkInCall(ctx, sess.ReceiverID, sess.ID, s.cfg.ActiveTTL); err != nil {
			s.log.Warn("in-call refresh failed", "call_id", sess.ID, "user_id", sess.ReceiverID, "err", err)
		}

	case next.Terminal():
		sess.EndTime = &now
		if sess.StartTime != nil {
			sess.DurationSeconds = int(now.Sub(*sess.StartTime) / time.Second)
			if sess.DurationSeconds < 0 {
				sess.DurationSeconds = 0
			}
		}
		sess.EndReason = string(next)
		if err := s.dir.ClearCall(ctx, sess.ID, sess.participantIDs()); err != nil {
			s.log.Warn("call cache clear failed", "call_id", sess.ID, "err", err)
		}
		if next == StatusMissed {
			if _, err := s.dir.IncrMissedCalls(ctx, sess.ReceiverID); err != nil {
				s.log.Warn("missed counter incr failed", "user_id", sess.ReceiverID, "err", err)
			}
			s.notifyAsync(ctx, func(ctx context.Context) error {
				return s.notifier.MissedCall(ctx, sess.ReceiverID, sess.ID, sess.CallerName)
			})
		}
	}

	if err := s.repo.Update(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("persist transition: %w", err)
	}
	return sess, nil
}

// Answer transitions the call to ANSWERED, acks the answering session, and
// schedules the delayed caller-facing call:answered event.
func (s *Service) Answer(ctx context.Context, callID, answererSessionID string) (Session, error) {
	sess, err := s.UpdateStatus(ctx, callID, StatusAnswered, answererSessionID)
	if err != nil {
		return Session{}, err
	}

	s.send(ctx, answererSessionID, EventAnswerSuccess, AnswerSuccessPayload{CallID: sess.ID})

	// UX debounce: the caller sees call:answered slightly after the
	// receiver's client has switched to the in-call view. Scheduled, so no
	// handler goroutine is held.
	callerSession := sess.CallerSessionID
	payload := AnsweredPayload{CallID: sess.ID, ReceiverID: sess.ReceiverID}
	bg := context.WithoutCancel(ctx)
	s.schedule(s.cfg.AnswerDelay, func() {
		s.send(bg, callerSession, EventAnswered, payload)
	})

	return sess, nil
}

// Reject transitions the call to REJECTED and informs both sides.
func (s *Service) Reject(ctx context.Context, callID, originSessionID, reason string) (Session, error) {
	sess, err := s.UpdateStatus(ctx, callID, StatusRejected, originSessionID)
	if err != nil {
		return Session{}, err
	}
	s.send(ctx, originSessionID, EventRejectSuccess, RejectedPayload{CallID: sess.ID})
	s.send(ctx, sess.CallerSessionID, EventRejected, RejectedPayload{CallID: sess.ID, Reason: reason})
	return sess, nil
}

// End transitions the call to ENDED and informs both sides. It is safe to
// call twice (explicit call:end racing disconnect cleanup); the loser gets
// NotFound.
func (s *Service) End(ctx context.Context, callID string) (Session, error) {
	sess, err := s.UpdateStatus(ctx, callID, StatusEnded, "")
	if err != nil {
		return Session{}, err
	}
	payload := EndedPayload{CallID: sess.ID, Duration: sess.DurationSeconds}
	s.send(ctx, sess.CallerSessionID, EventEnded, payload)
	switch {
	case sess.ReceiverSessionID != "":
		if sess.ReceiverSessionID != sess.CallerSessionID {
			s.send(ctx, sess.ReceiverSessionID, EventEnded, payload)
		}
	default:
		// Ended before answer (caller cancel or caller disconnect): every
		// receiver device still showing call:incoming must stop ringing.
		sids, err := s.dir.SessionsOf(ctx, sess.ReceiverID)
		if err != nil {
			s.log.Warn("receiver session lookup failed", "call_id", sess.ID, "user_id", sess.ReceiverID, "err", err)
			break
		}
		for _, sid := range sids {
			s.send(ctx, sid, EventEnded, payload)
		}
	}
	return sess, nil
}

// activeCallID resolves the user's active call id, marker-first with a
// durable fallback: an ANSWERED call whose in-call marker lapsed must still
// be findable, or disconnect cleanup could never finalize it.
func (s *Service) activeCallID(ctx context.Context, userID string) (string, bool, error) {
	callID, ok, err := s.dir.InCallOf(ctx, userID)
	if err != nil || ok {
		return callID, ok, err
	}
	sess, ok, err := s.repo.ActiveByParticipant(ctx, userID)
	if err != nil || !ok {
		return "", false, err
	}
	return sess.ID, true, nil
}

// EndActiveCallOf finalizes the user's active call, if any. Invoked from
// disconnect cleanup; idempotent.
func (s *Service) EndActiveCallOf(ctx context.Context, userID string) error {
	callID, ok, err := s.activeCallID(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if _, err := s.End(ctx, callID); err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// CurrentCall resolves the user's active call, cache-first.
func (s *Service) CurrentCall(ctx context.Context, userID string) (Session, error) {
	if userID == "" {
		return Session{}, apperr.Validation("userId is required")
	}
	callID, ok, err := s.activeCallID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, apperr.NotFound("no active call")
	}
	return s.loadSession(ctx, callID)
}

// History returns one page of the user's call history, newest first.
// Pages are cached per (user, page, size).
func (s *Service) History(ctx context.Context, userID string, page, size int) ([]Session, error) {
	if userID == "" {
		return nil, apperr.Validation("userId is required")
	}
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	key := fmt.Sprintf("history:%s:%d:%d", userID, page, size)
	if b, ok, err := s.dir.GetPage(ctx, key); err == nil && ok {
		var cached []Session
		if err := json.Unmarshal(b, &cached); err == nil {
			return cached, nil
		}
	}

	out, err := s.repo.ListByParticipant(ctx, userID, page, size)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(out); err == nil {
		if err := s.dir.CachePage(ctx, key, b, s.cfg.HistoryCacheTTL); err != nil {
			s.log.Debug("history cache failed", "user_id", userID, "err", err)
		}
	}
	return out, nil
}

// CountMissed returns the user's missed-call counter, cache-first. A cold
// cache is backfilled with one atomic set seeded from the durable count.
func (s *Service) CountMissed(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperr.Validation("userId is required")
	}
	if n, ok, err := s.dir.GetMissedCalls(ctx, userID); err == nil && ok {
		return n, nil
	}
	n, err := s.repo.CountByParticipantStatus(ctx, userID, StatusMissed)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.dir.SetMissedCalls(ctx, userID, n); err != nil {
			s.log.Debug("missed counter backfill failed", "user_id", userID, "err", err)
		}
	}
	return n, nil
}

// loadSession resolves a call snapshot cache-first with durable fallback.
func (s *Service) loadSession(ctx context.Context, callID string) (Session, error) {
	if b, ok, err := s.dir.GetCall(ctx, callID); err == nil && ok {
		var sess Session
		if err := json.Unmarshal(b, &sess); err == nil {
			return sess, nil
		}
		s.log.Warn("corrupt call snapshot, falling back to store", "call_id", callID)
	}
	sess, ok, err := s.repo.GetByID(ctx, callID)
	if err != nil {
		return Session{}, fmt.Errorf("load call: %w", err)
	}
	if !ok {
		return Session{}, apperr.NotFound("call not found")
	}
	return sess, nil
}

func (s *Service) cacheSnapshot(ctx context.Context, sess Session, ttl time.Duration) error {
	b, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.dir.CacheCall(ctx, sess.ID, b, ttl)
}

// send is best-effort event delivery; a closed session is not an error of
// the lifecycle itself.
func (s *Service) send(ctx context.Context, sessionID, event string, payload any) {
	if sessionID == "" {
		return
	}
	if err := s.sender.Send(ctx, sessionID, event, payload); err != nil {
		s.log.Debug("event delivery failed", "session_id", sessionID, "event", event, "err", err)
	}
}

func (s *Service) notifyAsync(ctx context.Context, fn func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := fn(bg); err != nil {
			s.log.Debug("notification failed", "err", err)
		}
	}()
}
