package notify

import "context"

// Notifier is the outbound push/email collaborator. All calls are
// fire-and-forget from the caller's perspective: failures are logged,
// never propagated into the call lifecycle.
type Notifier interface {
	IncomingCall(ctx context.Context, userID, callID, callerName, callType string) error
	MissedCall(ctx context.Context, userID, callID, callerName string) error
}

// Nop discards all notifications. Used until the platform's push
// pipeline is wired to this gateway.
type Nop struct{}

func (Nop) IncomingCall(context.Context, string, string, string, string) error { return nil }
func (Nop) MissedCall(context.Context, string, string, string) error           { return nil }
