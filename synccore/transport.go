package synccore

import (
	"context"

	"github.com/claude-watch/relay/queue"
)

// EventKind names a server-pushed (or poll-synthesized) event.
type EventKind string

const (
	EventStateSync       EventKind = "state_sync"
	EventActionRequested EventKind = "action_requested"
	EventProgressUpdate  EventKind = "progress_update"
	EventTaskStarted     EventKind = "task_started"
	EventTaskCompleted   EventKind = "task_completed"
	EventModeChanged     EventKind = "mode_changed"
	EventPong            EventKind = "pong"
)

// ServerEvent is one inbound frame, whether it arrived over the streaming
// transport or was synthesized from a polling transport's responses.
type ServerEvent struct {
	Kind            EventKind
	PendingApproval []queue.ApprovalRequest
	PendingQuestion []queue.QuestionRequest
	Progress        *queue.ProgressSnapshot
	Mode            string
}

// Transport is the swappable connection strategy a Core drives: streaming
// (bidirectional, server-push) or polling (fixed-interval, client-pull).
// Both report inbound activity uniformly as ServerEvents so Core's state
// machine, outbox, and batcher don't need to know which is active.
type Transport interface {
	// Connect establishes the transport and performs its handshake.
	// For streaming this is the WebSocket dial + first server message;
	// for polling it is a no-op that always succeeds.
	Connect(ctx context.Context) error
	// Send delivers one outbound message. Polling transports translate
	// this into the matching REST call; streaming transports frame it.
	Send(ctx context.Context, msg OutboxMessage) error
	// Events returns the channel of inbound ServerEvents. Closed when
	// the transport's connection ends.
	Events() <-chan ServerEvent
	// Close tears down the transport.
	Close() error
}
