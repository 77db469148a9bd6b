package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/claude-watch/relay/queue"
)

func TestCreateQuestionThenAnswerWithIndex(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/question", map[string]any{
		"pairingId":  "pair-1",
		"questionId": "q-1",
		"question":   "Which approach?",
		"options":    []string{"A", "B"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /question status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodPost, "/question/q-1", map[string]any{
		"pairingId": "pair-1",
		"answer":    1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /question/q-1 status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/question/pair-1/q-1", nil)
	var out struct {
		Data struct {
			Status queue.QuestionStatus  `json:"status"`
			Answer *queue.QuestionAnswer `json:"answer"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Data.Status != queue.QuestionAnswered {
		t.Fatalf("status = %q, want answered", out.Data.Status)
	}
	if out.Data.Answer == nil || out.Data.Answer.Index == nil || *out.Data.Answer.Index != 1 {
		t.Fatalf("answer = %#v, want index=1", out.Data.Answer)
	}
}

func TestCreateQuestionAnswerWithHandleOnMacSentinel(t *testing.T) {
	r := newTestRouter(t)

	doJSON(r, http.MethodPost, "/question", map[string]any{
		"pairingId":  "pair-1",
		"questionId": "q-2",
		"question":   "Defer?",
		"options":    []string{"A", "B"},
	})

	rec := doJSON(r, http.MethodPost, "/question/q-2", map[string]any{
		"pairingId": "pair-1",
		"answer":    queue.HandleOnMac,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestCreateQuestionMalformedAnswerIsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	doJSON(r, http.MethodPost, "/question", map[string]any{
		"pairingId":  "pair-1",
		"questionId": "q-3",
		"question":   "?",
		"options":    []string{"A"},
	})

	rec := doJSON(r, http.MethodPost, "/question/q-3", map[string]any{
		"pairingId": "pair-1",
		"answer":    map[string]any{"bogus": true},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}
