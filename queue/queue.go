// Package queue implements the relay's per-pairing approval queue, question
// queue, progress snapshot, and session-control state machine (spec
// components 3 and parts of 6/7 in the system overview).
package queue

import (
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/claude-watch/relay/kv"
)

const (
	requestTTL  = 5 * time.Minute
	progressTTL = 5 * time.Minute

	approvalPrefix  = "queue/approval/"
	approvalIDIndex = "queue/approval-id/"
	questionPrefix  = "queue/question/"
	questionIDIndex = "queue/question-id/"
	progressPrefix  = "queue/progress/"
	controlPrefix   = "queue/control/"
)

// Queues bundles the approval queue, question queue, progress snapshot, and
// session-control store over one KV fabric instance.
type Queues struct {
	kv       *kv.Store
	maxDepth int
}

// New constructs a Queues bundle. maxDepth bounds the approval/question
// queue length per pairing (spec default: 50).
func New(store *kv.Store, maxDepth int) *Queues {
	if maxDepth <= 0 {
		maxDepth = 50
	}
	return &Queues{
		kv:       store,
		maxDepth: maxDepth,
	}
}

// nextSortKey returns a lexicographically sortable key combining the
// request's createdAt, encoded via ULID's fixed-width timestamp component,
// with the request id itself. Ordering is createdAt ascending, then id
// lexicographic, matching the queue's documented tie-break rule exactly
// (two requests stamped within the same millisecond still sort by id, not
// by insertion order).
func (q *Queues) nextSortKey(createdAt time.Time, id string) string {
	var u ulid.ULID
	_ = u.SetTime(ulid.Timestamp(createdAt))
	return u.String()[:10] + "-" + id
}

func sortedKeys(entries map[string][]byte) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

