package api_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/claude-watch/relay/queue"
)

func TestSessionProgressPutAndGet(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/session-progress", map[string]any{
		"pairingId":      "pair-1",
		"currentTask":    "Writing tests",
		"progress":       0.4,
		"completedCount": 2,
		"totalCount":     5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session-progress status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/session-progress/pair-1", nil)
	var out struct {
		Data struct {
			Progress *queue.ProgressSnapshot `json:"progress"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Data.Progress == nil || out.Data.Progress.CurrentTask != "Writing tests" {
		t.Fatalf("progress = %#v, want CurrentTask set", out.Data.Progress)
	}
}

func TestSessionProgressMissingIsNull(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodGet, "/session-progress/never-reported", nil)
	var out struct {
		Data struct {
			Progress *queue.ProgressSnapshot `json:"progress"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Data.Progress != nil {
		t.Fatalf("progress = %#v, want null", out.Data.Progress)
	}
}

func TestSessionStatusDefaultsActive(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodGet, "/session-status/fresh-pairing", nil)
	var out struct {
		Data struct {
			SessionActive bool `json:"sessionActive"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Data.SessionActive {
		t.Fatalf("sessionActive = false, want true (missing state means active)")
	}
}

func TestSessionInterruptStopResumeClear(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/session-interrupt", map[string]any{
		"pairingId": "pair-1",
		"action":    "stop",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/session-interrupt/pair-1", nil)
	var out struct {
		Data struct {
			Interrupted bool   `json:"interrupted"`
			Action      string `json:"action"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !out.Data.Interrupted {
		t.Fatalf("interrupted = false after stop, want true")
	}

	rec = doJSON(r, http.MethodPost, "/session-interrupt", map[string]any{
		"pairingId": "pair-1",
		"action":    "resume",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSessionInterruptUnknownActionIsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/session-interrupt", map[string]any{
		"pairingId": "pair-1",
		"action":    "bogus",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionModeDefaultsManualThenSwitchesToAutoAccept(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodGet, "/session-mode/pair-1", nil)
	var out struct {
		Data struct {
			Mode string `json:"mode"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Data.Mode != "manual" {
		t.Fatalf("mode = %q, want manual", out.Data.Mode)
	}

	rec = doJSON(r, http.MethodPost, "/session-mode", map[string]any{
		"pairingId": "pair-1",
		"mode":      "auto-accept",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /session-mode status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/session-mode/pair-1", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Data.Mode != "auto-accept" {
		t.Fatalf("mode = %q, want auto-accept", out.Data.Mode)
	}
}

func TestSessionModeRejectsUnknownValue(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/session-mode", map[string]any{
		"pairingId": "pair-1",
		"mode":      "bogus",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
}

func TestSessionEndDrainsQueues(t *testing.T) {
	r := newTestRouter(t)

	doJSON(r, http.MethodPost, "/approval", map[string]any{
		"pairingId": "pair-1",
		"id":        "req-1",
		"type":      "bash",
		"title":     "Run command",
	})

	rec := doJSON(r, http.MethodPost, "/session-end", map[string]any{"pairingId": "pair-1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(r, http.MethodGet, "/approval-queue/pair-1", nil)
	var queued struct {
		Data struct {
			TotalCount int `json:"totalCount"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &queued); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if queued.Data.TotalCount != 0 {
		t.Fatalf("totalCount after session-end = %d, want 0", queued.Data.TotalCount)
	}
}
