package synccore

import (
	"sync"
	"time"
)

const resolvedWindow = 60 * time.Second

// Reconciler tracks actions the user resolved locally (approve/reject) so
// a subsequent poll response that still lists the action as pending,
// within a bounded window, doesn't cause it to reappear in the UI. After
// the window elapses the client trusts the relay again, which recovers
// from a crash that lost the local resolution record.
type Reconciler struct {
	mu       sync.Mutex
	resolved map[string]time.Time
	nowFunc  func() time.Time
}

// NewReconciler constructs an empty Reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{resolved: make(map[string]time.Time), nowFunc: time.Now}
}

// MarkResolved records that id was just resolved locally.
func (r *Reconciler) MarkResolved(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved[id] = r.nowFunc()
}

// ShouldSuppress reports whether id, if seen again as pending from the
// relay, should be suppressed because it was resolved locally within the
// reconciliation window.
func (r *Reconciler) ShouldSuppress(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.resolved[id]
	if !ok {
		return false
	}
	if r.nowFunc().Sub(at) > resolvedWindow {
		delete(r.resolved, id)
		return false
	}
	return true
}

// Reconcile filters a freshly-polled set of pending action IDs against
// locally-resolved state, returning the IDs that should actually be
// (re-)displayed as pending.
func (r *Reconciler) Reconcile(pendingIDs []string) []string {
	out := make([]string, 0, len(pendingIDs))
	for _, id := range pendingIDs {
		if r.ShouldSuppress(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
