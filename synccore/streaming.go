package synccore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/claude-watch/relay/queue"
)

const (
	pingInterval = 15 * time.Second
	pongTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
)

// wireEnvelope is the minimal shape every streaming frame carries; the
// richer per-kind payload is re-decoded from the same bytes once the kind
// is known.
type wireEnvelope struct {
	Type EventKind       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// StreamingTransport is the bidirectional WebSocket transport: the server
// pushes state_sync/action_requested/progress_update/task_started/
// task_completed/mode_changed/pong frames, and outbound messages are sent
// as they're flushed from the outbox.
type StreamingTransport struct {
	url   string
	token string

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan ServerEvent
	cancel context.CancelFunc

	lastPong time.Time
}

// NewStreamingTransport constructs a StreamingTransport dialing url,
// authenticated with token (the pairing's bearer credential).
func NewStreamingTransport(url, token string) *StreamingTransport {
	return &StreamingTransport{url: url, token: token, events: make(chan ServerEvent, 32)}
}

// Connect dials the relay and blocks until the handshake completes (the
// first server message after open), bounded by ctx's deadline. Once the
// handshake succeeds, the read and ping loops run detached from ctx (on
// an internal context torn down by Close) so a short handshake deadline
// doesn't also cut short the ongoing connection.
func (t *StreamingTransport) Connect(ctx context.Context) error {
	opts := &websocket.DialOptions{HTTPHeader: make(map[string][]string)}
	opts.HTTPHeader.Set("Authorization", "Bearer "+t.token)

	conn, _, err := websocket.Dial(ctx, t.url, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(64 * 1024)

	runCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.lastPong = time.Now()
	t.mu.Unlock()

	handshaked := make(chan struct{})
	go t.readLoop(runCtx, conn, handshaked)
	go t.pingLoop(runCtx, conn)

	select {
	case <-handshaked:
		return nil
	case <-ctx.Done():
		cancel()
		conn.Close(websocket.StatusPolicyViolation, "handshake timeout")
		return ctx.Err()
	}
}

func (t *StreamingTransport) readLoop(ctx context.Context, conn *websocket.Conn, handshaked chan struct{}) {
	defer close(t.events)
	var once sync.Once
	signalHandshake := func() { once.Do(func() { close(handshaked) }) }

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		signalHandshake()

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		if env.Type == EventPong {
			t.mu.Lock()
			t.lastPong = time.Now()
			t.mu.Unlock()
		}
		ev, ok := decodeEvent(env)
		if ok {
			select {
			case t.events <- ev:
			default:
			}
		}
	}
}

func decodeEvent(env wireEnvelope) (ServerEvent, bool) {
	ev := ServerEvent{Kind: env.Type}
	switch env.Type {
	case EventProgressUpdate, EventTaskStarted, EventTaskCompleted:
		var payload struct {
			Progress *queue.ProgressSnapshot `json:"progress"`
		}
		if err := json.Unmarshal(env.Data, &payload); err == nil && payload.Progress != nil {
			ev.Progress = payload.Progress
		}
	case EventActionRequested, EventStateSync:
		var payload struct {
			Approvals []queue.ApprovalRequest `json:"approvals"`
			Questions []queue.QuestionRequest `json:"questions"`
		}
		_ = json.Unmarshal(env.Data, &payload)
		ev.PendingApproval = payload.Approvals
		ev.PendingQuestion = payload.Questions
	case EventModeChanged:
		var payload struct {
			Mode string `json:"mode"`
		}
		_ = json.Unmarshal(env.Data, &payload)
		ev.Mode = payload.Mode
	case EventPong:
	default:
		return ServerEvent{}, false
	}
	return ev, true
}

func (t *StreamingTransport) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.writeJSON(ctx, wireEnvelope{Type: "ping"}); err != nil {
				return
			}
			t.mu.Lock()
			since := time.Since(t.lastPong)
			t.mu.Unlock()
			if since > pingInterval+pongTimeout {
				conn.Close(websocket.StatusPolicyViolation, "pong timeout")
				return
			}
		}
	}
}

// Send frames msg.Payload as an outbound WebSocket text message.
func (t *StreamingTransport) Send(ctx context.Context, msg OutboxMessage) error {
	return t.writeJSON(ctx, msg.Payload)
}

func (t *StreamingTransport) writeJSON(ctx context.Context, v any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

// Events returns the channel of inbound ServerEvents.
func (t *StreamingTransport) Events() <-chan ServerEvent {
	return t.events
}

// Close tears down the underlying WebSocket connection and stops the
// read/ping loops.
func (t *StreamingTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}
