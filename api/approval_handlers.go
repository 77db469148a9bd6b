package api

import (
	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/queue"
	"github.com/claude-watch/relay/relayhub"
)

type createApprovalRequest struct {
	PairingID   string `json:"pairingId"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	FilePath    string `json:"filePath"`
	Command     string `json:"command"`
}

// CreateApproval handles POST /approval.
func (h *Handlers) CreateApproval(c *gin.Context) {
	var req createApprovalRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	err := h.Queues.EnqueueApproval(req.PairingID, queue.ApprovalRequest{
		ID:          req.ID,
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
		FilePath:    req.FilePath,
		Command:     req.Command,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	if h.Push != nil {
		h.Push.Dispatch(req.PairingID, relayhub.HintApproval, req.ID)
	}

	RespondData(c, gin.H{"success": true, "requestId": req.ID})
}

// ApprovalQueue handles GET /approval-queue/{pairingId}.
func (h *Handlers) ApprovalQueue(c *gin.Context) {
	pairingID := c.Param("pairingId")

	requests, err := h.Queues.FetchPendingApprovals(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"requests": requests, "totalCount": len(requests)})
}

type respondApprovalRequest struct {
	PairingID string `json:"pairingId"`
	Approved  bool   `json:"approved"`
}

// RespondToApproval handles POST /approval/{requestId}.
func (h *Handlers) RespondToApproval(c *gin.Context) {
	requestID := c.Param("requestId")

	var req respondApprovalRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	if err := h.Queues.RespondApproval(req.PairingID, requestID, req.Approved); err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"success": true})
}

// ApprovalResponse handles GET /approval/{pairingId}/{requestId}.
func (h *Handlers) ApprovalResponse(c *gin.Context) {
	pairingID := c.Param("pairingId")
	requestID := c.Param("requestId")

	status, err := h.Queues.FetchApprovalResponse(pairingID, requestID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if status == queue.ResponseNotFound {
		RespondNotFound(c, "approval request not found")
		return
	}

	RespondData(c, gin.H{"id": requestID, "status": status})
}

// ClearApprovalQueue handles DELETE /approval-queue/{pairingId}.
func (h *Handlers) ClearApprovalQueue(c *gin.Context) {
	pairingID := c.Param("pairingId")

	if err := h.Queues.DrainApprovals(pairingID); err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"success": true})
}
