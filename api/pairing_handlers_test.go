package api_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestPairingInitiateStatusComplete(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/pair/initiate", map[string]any{
		"deviceToken": "watch-device-token",
		"publicKey":   "d2F0Y2gtcHVibGljLWtleQ==",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /pair/initiate status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var initiated struct {
		Data struct {
			Code    string `json:"code"`
			WatchID string `json:"watchId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &initiated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if initiated.Data.Code == "" || initiated.Data.WatchID == "" {
		t.Fatalf("initiated = %#v, want non-empty code and watchId", initiated.Data)
	}

	rec = doJSON(r, http.MethodPost, "/pair/complete", map[string]any{
		"code":        initiated.Data.Code,
		"deviceToken": "cli-device-token",
		"publicKey":   "Y2xpLXB1YmxpYy1rZXk=",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /pair/complete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var completed struct {
		Data struct {
			PairingID      string `json:"pairingId"`
			WatchPublicKey string `json:"watchPublicKey"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &completed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if completed.Data.PairingID == "" {
		t.Fatalf("completed = %#v, want a pairingId", completed.Data)
	}

	rec = doJSON(r, http.MethodGet, "/pair/status/"+initiated.Data.WatchID, nil)
	var status struct {
		Data struct {
			Paired       bool   `json:"paired"`
			PairingID    string `json:"pairingId"`
			CLIPublicKey string `json:"cliPublicKey"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !status.Data.Paired || status.Data.PairingID != completed.Data.PairingID {
		t.Fatalf("status = %#v, want paired with matching pairingId", status.Data)
	}
}

func TestPairingCompleteInvalidCodeIsNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodPost, "/pair/complete", map[string]any{
		"code":      "000000",
		"publicKey": "Y2xpLXB1YmxpYy1rZXk=",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404, body = %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(r, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
