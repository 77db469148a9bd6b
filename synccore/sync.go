package synccore

import (
	"context"
	"time"

	"github.com/claude-watch/relay/log"
	"github.com/claude-watch/relay/queue"
)

const handshakeTimeout = 10 * time.Second

// Observer receives the events a Core produces as it drives a pairing's
// sync loop. All callbacks may be nil.
type Observer struct {
	OnApprovalsPending func([]queue.ApprovalRequest)
	OnQuestionsPending func([]queue.QuestionRequest)
	OnProgress         func(queue.ProgressSnapshot)
	OnModeChanged      func(string)
	OnStateChanged     func(from, to State)
}

// Core drives one pairing's cooperative sync task: connection state
// machine, reconnect backoff, outbox flush on reconnect, optimistic-update
// reconciliation, and progress batching and staleness. It records the
// pairing's mode but approves nothing by itself in auto-accept mode;
// approvals are sent only through ApproveLocally. It is transport-agnostic: dial supplies a fresh Transport for
// each connection attempt (streaming or polling).
type Core struct {
	dial func(ctx context.Context) (Transport, error)
	obs  Observer

	state     *StateMachine
	backoff   ReconnectBackoff
	outbox    *Outbox
	reconcile *Reconciler
	stale     *StalenessTracker
	batcher   *ActivityBatcher

	// mode is read and written only from the single cooperative scheduler
	// goroutine the spec calls for (Run's goroutine plus the caller's UI
	// thread if and only if it's the same goroutine); no lock by design.
	mode string
}

// NewCore constructs a Core. dial is called on every (re)connection
// attempt and must return a transport ready to Connect.
func NewCore(dial func(ctx context.Context) (Transport, error), obs Observer) *Core {
	c := &Core{dial: dial, obs: obs, outbox: NewOutbox(), reconcile: NewReconciler(), stale: NewStalenessTracker()}
	c.state = NewStateMachine(func(from, to State) {
		if c.obs.OnStateChanged != nil {
			c.obs.OnStateChanged(from, to)
		}
	})
	c.batcher = NewActivityBatcher(c.applyProgress)
	return c
}

// State returns the Core's current connection state.
func (c *Core) State() State {
	return c.state.Current()
}

// Enqueue buffers an outbound message. If connected, Run's loop flushes it
// on the next iteration; if disconnected, it sits in the bounded outbox
// until reconnect.
func (c *Core) Enqueue(priority Priority, payload any) {
	c.outbox.Push(OutboxMessage{Priority: priority, Payload: payload})
}

// ApproveLocally records an optimistic local approval: removes the action
// from future reconciliation and queues the approve response at high
// priority.
func (c *Core) ApproveLocally(requestID, pairingID string) {
	c.reconcile.MarkResolved(requestID)
	c.Enqueue(PriorityHigh, ApprovalResponseMessage{PairingID: pairingID, RequestID: requestID, Approved: true})
}

// RejectLocally is ApproveLocally's rejection counterpart.
func (c *Core) RejectLocally(requestID, pairingID string) {
	c.reconcile.MarkResolved(requestID)
	c.Enqueue(PriorityHigh, ApprovalResponseMessage{PairingID: pairingID, RequestID: requestID, Approved: false})
}

// SetMode updates the client-observed mode. Transitioning into
// "auto-accept" is handled by the caller driving ApproveLocally over the
// current pending set, per the policy that auto-accept approves the
// moment a request is observed, not just on future arrivals.
func (c *Core) SetMode(mode string) {
	c.mode = mode
}

// Mode returns the last-known mode (e.g. "auto-accept"), as set locally
// via SetMode or observed from a mode_changed event.
func (c *Core) Mode() string {
	return c.mode
}

// Foreground notifies the Core the app entered the foreground: backoff
// resets, the batcher flushes, and a paused polling transport (if active)
// resumes.
func (c *Core) Foreground(t Transport) {
	c.backoff.Reset()
	c.batcher.Flush()
	if p, ok := t.(*PollingTransport); ok {
		p.Resume()
	}
}

// Background pauses a polling transport; streaming transports keep
// running (the ping/pong liveness check still applies).
func (c *Core) Background(t Transport) {
	if p, ok := t.(*PollingTransport); ok {
		p.Pause()
	}
}

// ReachabilityAvailable resets the backoff, per the rule that a
// network-reachability transition to "available" zeroes retry count.
func (c *Core) ReachabilityAvailable() {
	c.backoff.Reset()
}

// Run drives the connect/serve/reconnect loop until ctx is cancelled, then
// returns ctx.Err(). If the reconnect backoff runs out of retries first, Run
// returns nil in the Disconnected state.
func (c *Core) Run(ctx context.Context) error {
	defer c.batcher.Flush()
	for {
		if ctx.Err() != nil {
			c.state.Transition(Disconnected)
			return ctx.Err()
		}

		c.state.Transition(Connecting)
		transport, err := c.connectWithHandshake(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("sync handshake failed")
			if !c.waitBackoff(ctx) {
				c.state.Transition(Disconnected)
				return ctx.Err()
			}
			continue
		}

		c.backoff.Reset()
		c.state.Transition(Connected)
		c.flushOutbox(ctx, transport)
		c.serve(ctx, transport)
		transport.Close()

		if ctx.Err() != nil {
			c.state.Transition(Disconnected)
			return ctx.Err()
		}
		c.state.Transition(Reconnecting)
		if !c.waitBackoff(ctx) {
			c.state.Transition(Disconnected)
			return ctx.Err()
		}
	}
}

func (c *Core) connectWithHandshake(ctx context.Context) (Transport, error) {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	transport, err := c.dial(hctx)
	if err != nil {
		return nil, err
	}
	if err := transport.Connect(hctx); err != nil {
		return nil, err
	}
	return transport, nil
}

func (c *Core) waitBackoff(ctx context.Context) bool {
	delay, ok := c.backoff.NextDelay()
	if !ok {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func (c *Core) flushOutbox(ctx context.Context, t Transport) {
	for _, msg := range c.outbox.Flush() {
		if err := t.Send(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("outbox flush send failed")
			c.outbox.Push(msg)
		}
	}
}

// serve reads events from transport until its channel closes (send/receive
// error) or ctx is cancelled.
func (c *Core) serve(ctx context.Context, t Transport) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-t.Events():
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Core) handleEvent(ev ServerEvent) {
	switch ev.Kind {
	case EventActionRequested, EventStateSync:
		if ev.PendingApproval != nil {
			pending := c.filterResolved(ev.PendingApproval)
			if c.obs.OnApprovalsPending != nil {
				c.obs.OnApprovalsPending(pending)
			}
		}
		if ev.PendingQuestion != nil && c.obs.OnQuestionsPending != nil {
			c.obs.OnQuestionsPending(ev.PendingQuestion)
		}
	case EventProgressUpdate, EventTaskStarted, EventTaskCompleted:
		if ev.Progress != nil {
			c.batcher.Observe(*ev.Progress)
		}
	case EventModeChanged:
		c.mode = ev.Mode
		if c.obs.OnModeChanged != nil {
			c.obs.OnModeChanged(ev.Mode)
		}
	}
}

func (c *Core) filterResolved(reqs []queue.ApprovalRequest) []queue.ApprovalRequest {
	out := make([]queue.ApprovalRequest, 0, len(reqs))
	for _, r := range reqs {
		if c.reconcile.ShouldSuppress(r.ID) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (c *Core) applyProgress(snap queue.ProgressSnapshot) {
	c.stale.Observe(snap)
	if c.obs.OnProgress != nil {
		c.obs.OnProgress(snap)
	}
}

// CurrentProgress returns the last observed progress snapshot, or false if
// it has gone stale (see StalenessTracker).
func (c *Core) CurrentProgress() (queue.ProgressSnapshot, bool) {
	return c.stale.Current()
}
