// Package relayhub broadcasts push hints to whatever is listening for a
// pairing: a connected streaming client, or the push dispatcher's best-effort
// offline notification path. It carries no user content, only enough for the
// recipient to know it should poll.
package relayhub

import (
	"sync"
	"time"
)

// HintKind identifies what changed, matching the request kinds the push
// dispatcher is allowed to name in its payload.
type HintKind string

const (
	HintApproval HintKind = "approval"
	HintQuestion HintKind = "question"
	HintProgress HintKind = "progress"
	HintMode     HintKind = "mode"
)

// Hint is the opaque, content-free notification fanned out to subscribers of
// a pairing. Recipients must poll the relay to learn what it refers to.
type Hint struct {
	Kind      HintKind `json:"kind"`
	ID        string   `json:"id,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// Hub fans out Hints to per-pairing subscriber channels.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Hint]struct{}
}

// New constructs an empty Hub.
func New() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Hint]struct{})}
}

// Subscribe registers for hints on pairingID, returning a receive channel and
// an unsubscribe function the caller must invoke exactly once.
func (h *Hub) Subscribe(pairingID string) (<-chan Hint, func()) {
	ch := make(chan Hint, 8)

	h.mu.Lock()
	if h.subscribers[pairingID] == nil {
		h.subscribers[pairingID] = make(map[chan Hint]struct{})
	}
	h.subscribers[pairingID][ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subscribers[pairingID]; ok {
			if _, exists := set[ch]; exists {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subscribers, pairingID)
			}
		}
	}

	return ch, unsubscribe
}

// Publish broadcasts hint to every current subscriber of pairingID. Slow
// subscribers are dropped from delivery rather than allowed to block the
// publisher, matching the spec's best-effort push semantics.
func (h *Hub) Publish(pairingID string, hint Hint) {
	if hint.Timestamp == 0 {
		hint.Timestamp = time.Now().UnixMilli()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[pairingID] {
		select {
		case ch <- hint:
		default:
		}
	}
}

// SubscriberCount reports how many listeners currently hold a subscription
// for pairingID.
func (h *Hub) SubscriberCount(pairingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[pairingID])
}

// Close unsubscribes and closes every channel across every pairing.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subscribers {
		for ch := range set {
			close(ch)
		}
	}
	h.subscribers = make(map[string]map[chan Hint]struct{})
}
