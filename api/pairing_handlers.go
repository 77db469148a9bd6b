package api

import (
	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/apperror"
)

type initiatePairingRequest struct {
	DeviceToken string `json:"deviceToken"`
	PublicKey   string `json:"publicKey"`
}

type initiatePairingResponse struct {
	Code    string `json:"code"`
	WatchID string `json:"watchId"`
}

// InitiatePairing handles POST /pair/initiate.
func (h *Handlers) InitiatePairing(c *gin.Context) {
	var req initiatePairingRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	code, watchID, err := h.Pairing.Initiate(req.DeviceToken, req.PublicKey)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, initiatePairingResponse{Code: code, WatchID: watchID})
}

type pairingStatusResponse struct {
	Paired       bool   `json:"paired"`
	PairingID    string `json:"pairingId,omitempty"`
	CLIPublicKey string `json:"cliPublicKey,omitempty"`
}

// PairingStatus handles GET /pair/status/{watchId}.
func (h *Handlers) PairingStatus(c *gin.Context) {
	watchID := c.Param("watchId")

	paired, pairingID, cliPublicKey, err := h.Pairing.Status(watchID)
	if err != nil {
		if apperror.CodeOf(err) == apperror.NotFound {
			RespondNotFound(c, "pairing session not found or expired")
			return
		}
		RespondError(c, err)
		return
	}

	RespondData(c, pairingStatusResponse{Paired: paired, PairingID: pairingID, CLIPublicKey: cliPublicKey})
}

type completePairingRequest struct {
	Code        string `json:"code"`
	DeviceToken string `json:"deviceToken"`
	PublicKey   string `json:"publicKey"`
}

type completePairingResponse struct {
	PairingID      string `json:"pairingId"`
	WatchPublicKey string `json:"watchPublicKey"`
}

// CompletePairing handles POST /pair/complete.
func (h *Handlers) CompletePairing(c *gin.Context) {
	var req completePairingRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	pairingID, watchPublicKey, err := h.Pairing.Complete(req.Code, req.DeviceToken, req.PublicKey)
	if err != nil {
		if apperror.CodeOf(err) == apperror.NotFound {
			RespondNotFound(c, "pairing code invalid or expired")
			return
		}
		RespondError(c, err)
		return
	}

	RespondData(c, completePairingResponse{PairingID: pairingID, WatchPublicKey: watchPublicKey})
}

// Health handles GET /health.
func (h *Handlers) Health(c *gin.Context) {
	RespondData(c, gin.H{"status": "ok"})
}
