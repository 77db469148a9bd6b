package queue

import (
	"encoding/json"
	"time"

	"github.com/claude-watch/relay/apperror"
)

// QuestionStatus is the monotonic status of a QuestionRequest.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
)

// HandleOnMac is the sentinel answer for a single-select question the user
// chose to defer to the CLI's own terminal.
const HandleOnMac = "HANDLE_ON_MAC"

// QuestionAnswer is the wrist's response to a QuestionRequest. For
// multiSelect questions, Indices holds the chosen set; for single-select,
// either Index or the HandleOnMac sentinel is set.
type QuestionAnswer struct {
	Index   *int   `json:"index,omitempty"`
	Indices []int  `json:"indices,omitempty"`
	Handled string `json:"handled,omitempty"` // HandleOnMac when deferred
}

// QuestionRequest is a single AskUserQuestion prompt relayed from the bridge
// to the wrist client.
type QuestionRequest struct {
	QuestionID        string          `json:"questionId"`
	Question          string          `json:"question"`
	Header            string          `json:"header,omitempty"`
	Options           []string        `json:"options"`
	MultiSelect       bool            `json:"multiSelect"`
	RecommendedAnswer string          `json:"recommendedAnswer,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	Status            QuestionStatus  `json:"status"`
	Answer            *QuestionAnswer `json:"answer,omitempty"`
}

func questionIndexKey(pairingID, id string) string {
	return questionIDIndex + pairingID + "/" + id
}

// EnqueueQuestion appends req to pairingID's question queue. Idempotent on
// (pairingID, req.QuestionID).
func (q *Queues) EnqueueQuestion(pairingID string, req QuestionRequest) error {
	idxKey := questionIndexKey(pairingID, req.QuestionID)
	if _, _, err := q.kv.Get(idxKey); err == nil {
		return nil
	}
	if len(req.Options) == 0 {
		return apperror.New(apperror.InvalidInput, "question requires at least one option")
	}

	req.Status = QuestionPending
	req.Answer = nil
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	sortKey := q.nextSortKey(req.CreatedAt, req.QuestionID)
	itemKey := questionPrefix + pairingID + "/" + sortKey

	raw, err := json.Marshal(req)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal question request", err)
	}
	if _, err := q.kv.Put(itemKey, raw, requestTTL); err != nil {
		return err
	}
	if _, err := q.kv.Put(idxKey, []byte(sortKey), requestTTL); err != nil {
		return err
	}
	return q.pruneQuestion(pairingID)
}

func (q *Queues) pruneQuestion(pairingID string) error {
	entries, err := q.kv.ScanPrefix(questionPrefix + pairingID + "/")
	if err != nil {
		return err
	}
	keys := sortedKeys(entries)
	overflow := len(keys) - q.maxDepth
	for i := 0; i < overflow; i++ {
		var req QuestionRequest
		if json.Unmarshal(entries[keys[i]], &req) == nil {
			_ = q.kv.Delete(questionIndexKey(pairingID, req.QuestionID))
		}
		_ = q.kv.Delete(keys[i])
	}
	return nil
}

// FetchPendingQuestions returns pending questions in FIFO order, never
// clearing queue state.
func (q *Queues) FetchPendingQuestions(pairingID string) ([]QuestionRequest, error) {
	entries, err := q.kv.ScanPrefix(questionPrefix + pairingID + "/")
	if err != nil {
		return nil, err
	}
	out := make([]QuestionRequest, 0, len(entries))
	for _, key := range sortedKeys(entries) {
		var req QuestionRequest
		if err := json.Unmarshal(entries[key], &req); err != nil {
			continue
		}
		if req.Status == QuestionPending {
			out = append(out, req)
		}
	}
	return out, nil
}

// validateAnswer checks the answer shape against the question's options and
// multiSelect flag, returning apperror.InvalidInput (code INVALID_ANSWER in
// the message) on malformed input.
func validateAnswer(req QuestionRequest, answer QuestionAnswer) error {
	n := len(req.Options)
	if req.MultiSelect {
		if len(answer.Indices) == 0 {
			return apperror.New(apperror.InvalidInput, "INVALID_ANSWER: empty selection")
		}
		seen := make(map[int]bool, len(answer.Indices))
		for _, idx := range answer.Indices {
			if idx < 0 || idx >= n {
				return apperror.New(apperror.InvalidInput, "INVALID_ANSWER: index out of range")
			}
			seen[idx] = true
		}
		return nil
	}

	if answer.Handled == HandleOnMac {
		return nil
	}
	if answer.Index == nil {
		return apperror.New(apperror.InvalidInput, "INVALID_ANSWER: missing index")
	}
	if *answer.Index < 0 || *answer.Index >= n {
		return apperror.New(apperror.InvalidInput, "INVALID_ANSWER: index out of range")
	}
	return nil
}

// RespondQuestion records the wrist's answer exactly once; a second call is
// a no-op once answered.
func (q *Queues) RespondQuestion(pairingID, questionID string, answer QuestionAnswer) error {
	sortKeyRaw, _, err := q.kv.Get(questionIndexKey(pairingID, questionID))
	if err != nil {
		return apperror.New(apperror.NotFound, "question not found")
	}
	itemKey := questionPrefix + pairingID + "/" + string(sortKeyRaw)

	raw, version, err := q.kv.Get(itemKey)
	if err != nil {
		return apperror.New(apperror.NotFound, "question not found")
	}
	var req QuestionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return apperror.Wrap(apperror.InvalidInput, "corrupt question request", err)
	}
	if req.Status != QuestionPending {
		return nil
	}

	if err := validateAnswer(req, answer); err != nil {
		return err
	}

	req.Status = QuestionAnswered
	req.Answer = &answer

	updated, err := json.Marshal(req)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal question request", err)
	}
	_, err = q.kv.CompareAndSwap(itemKey, version, updated, requestTTL)
	if apperror.CodeOf(err) == apperror.Conflict {
		return nil
	}
	return err
}

// FetchQuestionResponse is what the bridge polls for a question's answer.
func (q *Queues) FetchQuestionResponse(pairingID, questionID string) (ResponseStatus, *QuestionAnswer, error) {
	sortKeyRaw, _, err := q.kv.Get(questionIndexKey(pairingID, questionID))
	if err != nil {
		return ResponseNotFound, nil, nil
	}
	raw, _, err := q.kv.Get(questionPrefix + pairingID + "/" + string(sortKeyRaw))
	if err != nil {
		return ResponseNotFound, nil, nil
	}
	var req QuestionRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", nil, apperror.Wrap(apperror.InvalidInput, "corrupt question request", err)
	}
	if req.Status == QuestionAnswered {
		return ResponseAnswered, req.Answer, nil
	}
	return ResponsePending, nil, nil
}

// DrainQuestions removes the entire question queue for a pairing.
func (q *Queues) DrainQuestions(pairingID string) error {
	entries, err := q.kv.ScanPrefix(questionPrefix + pairingID + "/")
	if err != nil {
		return err
	}
	for key, raw := range entries {
		var req QuestionRequest
		if json.Unmarshal(raw, &req) == nil {
			_ = q.kv.Delete(questionIndexKey(pairingID, req.QuestionID))
		}
		_ = q.kv.Delete(key)
	}
	return nil
}
