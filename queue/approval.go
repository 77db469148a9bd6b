package queue

import (
	"encoding/json"
	"time"

	"github.com/claude-watch/relay/apperror"
)

// ApprovalStatus is the monotonic status of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is a single permission prompt relayed from the bridge to
// the wrist client.
type ApprovalRequest struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	FilePath    string         `json:"filePath,omitempty"`
	Command     string         `json:"command,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	Status      ApprovalStatus `json:"status"`
}

func approvalIndexKey(pairingID, id string) string {
	return approvalIDIndex + pairingID + "/" + id
}

// EnqueueApproval appends req to pairingID's approval queue. Idempotent on
// (pairingID, req.ID): a second call with the same id is a no-op.
func (q *Queues) EnqueueApproval(pairingID string, req ApprovalRequest) error {
	idxKey := approvalIndexKey(pairingID, req.ID)
	if _, _, err := q.kv.Get(idxKey); err == nil {
		return nil
	}

	req.Status = ApprovalPending
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	sortKey := q.nextSortKey(req.CreatedAt, req.ID)
	itemKey := approvalPrefix + pairingID + "/" + sortKey

	raw, err := json.Marshal(req)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal approval request", err)
	}

	if _, err := q.kv.Put(itemKey, raw, requestTTL); err != nil {
		return err
	}
	if _, err := q.kv.Put(idxKey, []byte(sortKey), requestTTL); err != nil {
		return err
	}

	return q.pruneApproval(pairingID)
}

// pruneApproval drops the oldest entries once the queue exceeds maxDepth.
func (q *Queues) pruneApproval(pairingID string) error {
	entries, err := q.kv.ScanPrefix(approvalPrefix + pairingID + "/")
	if err != nil {
		return err
	}
	keys := sortedKeys(entries)
	overflow := len(keys) - q.maxDepth
	for i := 0; i < overflow; i++ {
		var req ApprovalRequest
		if json.Unmarshal(entries[keys[i]], &req) == nil {
			_ = q.kv.Delete(approvalIndexKey(pairingID, req.ID))
		}
		_ = q.kv.Delete(keys[i])
	}
	return nil
}

// FetchPendingApprovals returns pending requests in FIFO order. It never
// mutates queue state, so repeated polling during a background/foreground
// transition converges to the same set.
func (q *Queues) FetchPendingApprovals(pairingID string) ([]ApprovalRequest, error) {
	entries, err := q.kv.ScanPrefix(approvalPrefix + pairingID + "/")
	if err != nil {
		return nil, err
	}
	out := make([]ApprovalRequest, 0, len(entries))
	for _, key := range sortedKeys(entries) {
		var req ApprovalRequest
		if err := json.Unmarshal(entries[key], &req); err != nil {
			continue
		}
		if req.Status == ApprovalPending {
			out = append(out, req)
		}
	}
	return out, nil
}

// RespondApproval flips the request's status exactly once; a second call
// with the same outcome or a different one is a no-op once resolved.
func (q *Queues) RespondApproval(pairingID, id string, approved bool) error {
	sortKeyRaw, _, err := q.kv.Get(approvalIndexKey(pairingID, id))
	if err != nil {
		return apperror.New(apperror.NotFound, "approval request not found")
	}
	itemKey := approvalPrefix + pairingID + "/" + string(sortKeyRaw)

	raw, version, err := q.kv.Get(itemKey)
	if err != nil {
		return apperror.New(apperror.NotFound, "approval request not found")
	}
	var req ApprovalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return apperror.Wrap(apperror.InvalidInput, "corrupt approval request", err)
	}
	if req.Status != ApprovalPending {
		return nil
	}

	if approved {
		req.Status = ApprovalApproved
	} else {
		req.Status = ApprovalRejected
	}

	updated, err := json.Marshal(req)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal approval request", err)
	}
	_, err = q.kv.CompareAndSwap(itemKey, version, updated, requestTTL)
	if apperror.CodeOf(err) == apperror.Conflict {
		return nil
	}
	return err
}

// ResponseStatus is the bridge-facing view of a request's outcome, adding
// NotFound to the wrist-facing ApprovalStatus/QuestionStatus vocabulary.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseApproved ResponseStatus = "approved"
	ResponseRejected ResponseStatus = "rejected"
	ResponseAnswered ResponseStatus = "answered"
	ResponseNotFound ResponseStatus = "not_found"
)

// FetchApprovalResponse is what the bridge polls for the outcome of a
// previously enqueued request.
func (q *Queues) FetchApprovalResponse(pairingID, id string) (ResponseStatus, error) {
	sortKeyRaw, _, err := q.kv.Get(approvalIndexKey(pairingID, id))
	if err != nil {
		return ResponseNotFound, nil
	}
	raw, _, err := q.kv.Get(approvalPrefix + pairingID + "/" + string(sortKeyRaw))
	if err != nil {
		return ResponseNotFound, nil
	}
	var req ApprovalRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", apperror.Wrap(apperror.InvalidInput, "corrupt approval request", err)
	}
	switch req.Status {
	case ApprovalApproved:
		return ResponseApproved, nil
	case ApprovalRejected:
		return ResponseRejected, nil
	default:
		return ResponsePending, nil
	}
}

// DrainApprovals removes the entire approval queue for a pairing.
func (q *Queues) DrainApprovals(pairingID string) error {
	entries, err := q.kv.ScanPrefix(approvalPrefix + pairingID + "/")
	if err != nil {
		return err
	}
	for key, raw := range entries {
		var req ApprovalRequest
		if json.Unmarshal(raw, &req) == nil {
			_ = q.kv.Delete(approvalIndexKey(pairingID, req.ID))
		}
		_ = q.kv.Delete(key)
	}
	return nil
}
