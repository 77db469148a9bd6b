// Package api implements the relay's HTTP surface: stateless handlers
// binding the pairing registry, queues, and push dispatcher to the wire
// shapes the bridge and the watch client speak.
package api

import (
	"github.com/claude-watch/relay/pairing"
	"github.com/claude-watch/relay/push"
	"github.com/claude-watch/relay/queue"
	"github.com/claude-watch/relay/relayhub"
)

// Handlers bundles the components every relay endpoint binds to. Every
// handler method is stateless over these shared, already-thread-safe
// components.
type Handlers struct {
	Pairing *pairing.Registry
	Queues  *queue.Queues
	Push    *push.Dispatcher
	Hub     *relayhub.Hub
}

// New constructs a Handlers bundle. hub may be nil in tests that don't
// exercise the streaming endpoint; every other handler tolerates a nil Hub
// by skipping the best-effort notify.
func New(reg *pairing.Registry, queues *queue.Queues, dispatcher *push.Dispatcher, hub *relayhub.Hub) *Handlers {
	return &Handlers{Pairing: reg, Queues: queues, Push: dispatcher, Hub: hub}
}
