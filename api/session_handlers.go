package api

import (
	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/queue"
	"github.com/claude-watch/relay/relayhub"
)

type sessionProgressRequest struct {
	PairingID       string               `json:"pairingId"`
	CurrentTask     string               `json:"currentTask"`
	CurrentActivity string               `json:"currentActivity"`
	Progress        float64              `json:"progress"`
	CompletedCount  int                  `json:"completedCount"`
	TotalCount      int                  `json:"totalCount"`
	ElapsedSeconds  float64              `json:"elapsedSeconds"`
	Tasks           []queue.TaskProgress `json:"tasks"`
	Outcome         string               `json:"outcome"`
}

// PutSessionProgress handles POST /session-progress.
func (h *Handlers) PutSessionProgress(c *gin.Context) {
	var req sessionProgressRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	snap := queue.ProgressSnapshot{
		CurrentTask:     req.CurrentTask,
		CurrentActivity: req.CurrentActivity,
		Progress:        req.Progress,
		CompletedCount:  req.CompletedCount,
		TotalCount:      req.TotalCount,
		ElapsedSeconds:  req.ElapsedSeconds,
		Tasks:           req.Tasks,
		Outcome:         req.Outcome,
	}
	if err := h.Queues.PutProgress(req.PairingID, snap); err != nil {
		RespondError(c, err)
		return
	}

	if h.Push != nil {
		h.Push.Dispatch(req.PairingID, relayhub.HintProgress, req.PairingID)
	}

	RespondData(c, gin.H{"success": true})
}

// GetSessionProgress handles GET /session-progress/{pairingId}.
func (h *Handlers) GetSessionProgress(c *gin.Context) {
	pairingID := c.Param("pairingId")

	snap, found, err := h.Queues.FetchProgress(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if !found {
		RespondData(c, gin.H{"progress": nil})
		return
	}

	RespondData(c, gin.H{"progress": snap})
}

type sessionEndRequest struct {
	PairingID string `json:"pairingId"`
}

// EndSession handles POST /session-end.
func (h *Handlers) EndSession(c *gin.Context) {
	var req sessionEndRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	if err := h.Queues.End(req.PairingID); err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"success": true})
}

// SessionStatus handles GET /session-status/{pairingId}.
func (h *Handlers) SessionStatus(c *gin.Context) {
	pairingID := c.Param("pairingId")

	sc, err := h.Queues.SessionStatus(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"sessionActive": sc.Active && !sc.Ended})
}

type sessionInterruptRequest struct {
	PairingID string `json:"pairingId"`
	Action    string `json:"action"`
}

// SessionInterrupt handles POST /session-interrupt.
func (h *Handlers) SessionInterrupt(c *gin.Context) {
	var req sessionInterruptRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	var (
		sc  queue.SessionControl
		err error
	)
	switch req.Action {
	case "stop":
		sc, err = h.Queues.Stop(req.PairingID)
	case "resume":
		sc, err = h.Queues.Resume(req.PairingID)
	case "clear":
		sc, err = h.Queues.Clear(req.PairingID)
	default:
		RespondBadRequest(c, "action must be one of stop, resume, clear")
		return
	}
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"interrupted": sc.Interrupted, "action": sc.InterruptAction})
}

// SessionInterruptStatus handles GET /session-interrupt/{pairingId}.
func (h *Handlers) SessionInterruptStatus(c *gin.Context) {
	pairingID := c.Param("pairingId")

	sc, err := h.Queues.SessionStatus(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"interrupted": sc.Interrupted, "action": sc.InterruptAction})
}

type sessionModeRequest struct {
	PairingID string `json:"pairingId"`
	Mode      string `json:"mode"`
}

// SetSessionMode handles POST /session-mode. A mode change hints any
// connected streaming client so it can broadcast mode_changed and, in the
// auto-accept case, approve-all over its current pending set.
func (h *Handlers) SetSessionMode(c *gin.Context) {
	var req sessionModeRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	sc, err := h.Queues.SetMode(req.PairingID, req.Mode)
	if err != nil {
		RespondError(c, err)
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(req.PairingID, relayhub.Hint{Kind: relayhub.HintMode})
	}

	RespondData(c, gin.H{"mode": sc.Mode})
}

// SessionMode handles GET /session-mode/{pairingId}.
func (h *Handlers) SessionMode(c *gin.Context) {
	pairingID := c.Param("pairingId")

	sc, err := h.Queues.SessionStatus(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"mode": sc.Mode})
}
