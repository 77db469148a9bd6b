package synccore

import (
	"time"

	"github.com/claude-watch/relay/queue"
)

const (
	staleInProgress = 300 * time.Second
	staleComplete   = 3 * time.Second
)

// StalenessTracker clears an observed ProgressSnapshot once it hasn't
// been refreshed for the duration appropriate to its completion state: a
// long grace period while in progress, a short one once complete (so the
// UI returns to idle promptly rather than lingering on a finished run).
type StalenessTracker struct {
	lastSeen time.Time
	snap     queue.ProgressSnapshot
	have     bool
	nowFunc  func() time.Time
}

// NewStalenessTracker constructs an empty tracker.
func NewStalenessTracker() *StalenessTracker {
	return &StalenessTracker{nowFunc: time.Now}
}

// Observe records a freshly-fetched snapshot as current.
func (s *StalenessTracker) Observe(snap queue.ProgressSnapshot) {
	s.snap = snap
	s.have = true
	s.lastSeen = s.nowFunc()
}

// Current returns the tracked snapshot and whether it is still live. A
// stale snapshot is cleared and reported as absent; clearing a complete
// snapshot means the UI goes back to idle rather than re-showing the
// completion screen.
func (s *StalenessTracker) Current() (queue.ProgressSnapshot, bool) {
	if !s.have {
		return queue.ProgressSnapshot{}, false
	}
	threshold := staleInProgress
	if s.snap.IsComplete() {
		threshold = staleComplete
	}
	if s.nowFunc().Sub(s.lastSeen) > threshold {
		s.have = false
		return queue.ProgressSnapshot{}, false
	}
	return s.snap, true
}

// Clear drops the tracked snapshot immediately, e.g. on session end.
func (s *StalenessTracker) Clear() {
	s.have = false
}
