package synccore

import (
	"sync"
	"time"

	"github.com/claude-watch/relay/queue"
)

const batchWindow = 2 * time.Second

// ActivityBatcher coalesces high-frequency progress snapshots into a 2s
// window, applying only the latest snapshot once the window elapses;
// intermediate snapshots within the window are discarded. Foreground
// entry or shutdown flush immediately via Flush.
type ActivityBatcher struct {
	apply func(queue.ProgressSnapshot)

	mu      sync.Mutex
	pending *queue.ProgressSnapshot
	timer   *time.Timer
}

// NewActivityBatcher constructs a batcher that calls apply with the
// winning snapshot once per window.
func NewActivityBatcher(apply func(queue.ProgressSnapshot)) *ActivityBatcher {
	return &ActivityBatcher{apply: apply}
}

// Observe records snap as the window's latest candidate, starting the
// window timer if one isn't already running.
func (b *ActivityBatcher) Observe(snap queue.ProgressSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = &snap
	if b.timer != nil {
		return
	}
	b.timer = time.AfterFunc(batchWindow, b.fire)
}

func (b *ActivityBatcher) fire() {
	b.mu.Lock()
	snap := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	if snap != nil {
		b.apply(*snap)
	}
}

// Flush applies any pending snapshot immediately and cancels the window
// timer. Called on foreground entry and on shutdown.
func (b *ActivityBatcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	snap := b.pending
	b.pending = nil
	b.mu.Unlock()

	if snap != nil {
		b.apply(*snap)
	}
}
