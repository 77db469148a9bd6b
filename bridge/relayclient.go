// Package bridge implements the CLI-side streaming permission bridge: it
// wraps the wrapped coding tool's control protocol (via bridge/agentsdk) and
// turns can_use_tool requests into relay approval/question queue round
// trips, falling back to local terminal input when the relay is
// unreachable and the operator has opted into that.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/claude-watch/relay/queue"
)

// RelayClient is a thin HTTP client for one paired bridge session's
// approval/question traffic against the relay.
type RelayClient struct {
	baseURL   string
	pairingID string
	http      *http.Client
}

// NewRelayClient constructs a RelayClient bound to pairingID against the
// relay at baseURL.
func NewRelayClient(baseURL, pairingID string) *RelayClient {
	return &RelayClient{
		baseURL:   baseURL,
		pairingID: pairingID,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *RelayClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("relay returned %s for %s %s", resp.Status, method, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// EnqueueApproval posts a permission prompt to /approval.
func (r *RelayClient) EnqueueApproval(ctx context.Context, id, kind, title, description, filePath, command string) error {
	body := map[string]any{
		"pairingId":   r.pairingID,
		"id":          id,
		"type":        kind,
		"title":       title,
		"description": description,
		"filePath":    filePath,
		"command":     command,
	}
	return r.do(ctx, http.MethodPost, "/approval", body, nil)
}

// PollApprovalOnce fetches the current status of a previously enqueued
// approval request.
func (r *RelayClient) PollApprovalOnce(ctx context.Context, id string) (queue.ResponseStatus, error) {
	var out struct {
		Data struct {
			Status queue.ResponseStatus `json:"status"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/approval/%s/%s", r.pairingID, id)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return out.Data.Status, nil
}

// RejectApproval answers an approval request as rejected. Used as the
// closest available relay operation to "drop the pending entry" when a
// control_cancel_request arrives, since the relay has no single-item
// delete endpoint.
func (r *RelayClient) RejectApproval(ctx context.Context, id string) error {
	body := map[string]any{"pairingId": r.pairingID, "approved": false}
	return r.do(ctx, http.MethodPost, "/approval/"+id, body, nil)
}

// EnqueueQuestion posts an AskUserQuestion prompt to /question.
func (r *RelayClient) EnqueueQuestion(ctx context.Context, questionID, question, header string, options []string, multiSelect bool, recommended string) error {
	body := map[string]any{
		"pairingId":         r.pairingID,
		"questionId":        questionID,
		"question":          question,
		"header":            header,
		"options":           options,
		"multiSelect":       multiSelect,
		"recommendedAnswer": recommended,
	}
	return r.do(ctx, http.MethodPost, "/question", body, nil)
}

type questionResponse struct {
	Data struct {
		Status queue.ResponseStatus  `json:"status"`
		Answer *queue.QuestionAnswer `json:"answer"`
	} `json:"data"`
}

// PollQuestionOnce fetches the current status/answer of a previously
// enqueued question.
func (r *RelayClient) PollQuestionOnce(ctx context.Context, questionID string) (queue.ResponseStatus, *queue.QuestionAnswer, error) {
	var out questionResponse
	path := fmt.Sprintf("/question/%s/%s", r.pairingID, questionID)
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", nil, err
	}
	return out.Data.Status, out.Data.Answer, nil
}

// RejectQuestion answers a question with the HANDLE_ON_MAC sentinel, the
// closest available operation to dropping a pending question on cancel.
func (r *RelayClient) RejectQuestion(ctx context.Context, questionID string) error {
	body := map[string]any{"pairingId": r.pairingID, "answer": queue.HandleOnMac}
	return r.do(ctx, http.MethodPost, "/question/"+questionID, body, nil)
}
