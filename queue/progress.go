package queue

import (
	"encoding/json"
	"time"

	"github.com/claude-watch/relay/apperror"
)

// TaskProgress is one entry in a ProgressSnapshot's task list.
type TaskProgress struct {
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

// ProgressSnapshot is the bridge's last-reported execution state for a
// pairing, overwritten wholesale on each hook emission.
type ProgressSnapshot struct {
	CurrentTask     string         `json:"currentTask,omitempty"`
	CurrentActivity string         `json:"currentActivity,omitempty"`
	Progress        float64        `json:"progress"`
	CompletedCount  int            `json:"completedCount"`
	TotalCount      int            `json:"totalCount"`
	ElapsedSeconds  float64        `json:"elapsedSeconds"`
	Tasks           []TaskProgress `json:"tasks,omitempty"`
	Outcome         string         `json:"outcome,omitempty"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// IsComplete reports whether the snapshot represents a finished run.
func (p ProgressSnapshot) IsComplete() bool {
	return p.Progress >= 1 || (p.TotalCount > 0 && p.CompletedCount == p.TotalCount)
}

func progressKey(pairingID string) string {
	return progressPrefix + pairingID
}

// PutProgress overwrites the snapshot for pairingID (last-write-wins).
func (q *Queues) PutProgress(pairingID string, snap ProgressSnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal progress snapshot", err)
	}
	_, err = q.kv.Put(progressKey(pairingID), raw, progressTTL)
	return err
}

// FetchProgress returns the current snapshot, or (zero, false, nil) if none
// exists or it has aged past TTL.
func (q *Queues) FetchProgress(pairingID string) (ProgressSnapshot, bool, error) {
	raw, _, err := q.kv.Get(progressKey(pairingID))
	if apperror.CodeOf(err) == apperror.NotFound {
		return ProgressSnapshot{}, false, nil
	}
	if err != nil {
		return ProgressSnapshot{}, false, err
	}
	var snap ProgressSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return ProgressSnapshot{}, false, apperror.Wrap(apperror.InvalidInput, "corrupt progress snapshot", err)
	}
	return snap, true, nil
}

// ClearProgress removes the snapshot for pairingID, used on session-end.
func (q *Queues) ClearProgress(pairingID string) error {
	return q.kv.Delete(progressKey(pairingID))
}
