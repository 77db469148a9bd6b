package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/claude-watch/relay/log"
	"github.com/claude-watch/relay/relayhub"
)

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamPingInterval = 15 * time.Second
	streamWriteWait    = 5 * time.Second
)

// wireFrame is the envelope every pushed frame carries: {"type": ..., "data": ...}.
type wireFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// streamInbound is what a watch client sends back over the same socket.
// Approval/question responses and mode changes all reuse the same
// validation and storage paths their REST equivalents do; the socket is
// just a second way to reach them.
type streamInbound struct {
	Type       string          `json:"type"`
	PairingID  string          `json:"pairingId"`
	RequestID  string          `json:"requestId"`
	Approved   bool            `json:"approved"`
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
	Mode       string          `json:"mode"`
}

// StreamSync handles GET /stream/{pairingId}, the bidirectional streaming
// transport: an immediate state_sync on connect, then a pushed frame for
// every hub hint until the client disconnects or the inbound loop errors.
func (h *Handlers) StreamSync(c *gin.Context) {
	pairingID := c.Param("pairingId")

	log.MarkHijacked(c)
	conn, err := streamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("pairingId", pairingID).Msg("stream upgrade failed")
		return
	}
	defer conn.Close()

	hints, unsubscribe := h.Hub.Subscribe(pairingID)
	defer unsubscribe()

	if err := h.sendStateSync(conn, pairingID); err != nil {
		return
	}

	inboundErr := make(chan error, 1)
	go h.readInbound(conn, pairingID, inboundErr)

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-inboundErr:
			return
		case hint, ok := <-hints:
			if !ok {
				return
			}
			if err := h.forwardHint(conn, pairingID, hint); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(wireFrame{Type: "pong"}); err != nil {
				return
			}
		}
	}
}

// sendStateSync writes the current pending approvals/questions as a
// state_sync frame, mirroring what a freshly (re)connected client needs to
// reconstruct its pending-requests view without waiting for the next hint.
func (h *Handlers) sendStateSync(conn *websocket.Conn, pairingID string) error {
	approvals, err := h.Queues.FetchPendingApprovals(pairingID)
	if err != nil {
		return err
	}
	questions, err := h.Queues.FetchPendingQuestions(pairingID)
	if err != nil {
		return err
	}
	return conn.WriteJSON(wireFrame{
		Type: "state_sync",
		Data: gin.H{"approvals": approvals, "questions": questions},
	})
}

// forwardHint re-fetches the data a hint refers to (hints carry no content
// of their own) and forwards it as the matching wire frame kind.
func (h *Handlers) forwardHint(conn *websocket.Conn, pairingID string, hint relayhub.Hint) error {
	switch hint.Kind {
	case relayhub.HintApproval, relayhub.HintQuestion:
		approvals, err := h.Queues.FetchPendingApprovals(pairingID)
		if err != nil {
			return err
		}
		questions, err := h.Queues.FetchPendingQuestions(pairingID)
		if err != nil {
			return err
		}
		return conn.WriteJSON(wireFrame{
			Type: "action_requested",
			Data: gin.H{"approvals": approvals, "questions": questions},
		})
	case relayhub.HintProgress:
		snap, found, err := h.Queues.FetchProgress(pairingID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		kind := "progress_update"
		if snap.Outcome != "" {
			kind = "task_completed"
		}
		return conn.WriteJSON(wireFrame{Type: kind, Data: gin.H{"progress": snap}})
	case relayhub.HintMode:
		sc, err := h.Queues.SessionStatus(pairingID)
		if err != nil {
			return err
		}
		return conn.WriteJSON(wireFrame{Type: "mode_changed", Data: gin.H{"mode": sc.Mode}})
	default:
		return nil
	}
}

// readInbound pumps messages from the client to completion, dispatching
// approval/question responses and mode changes to the same queue methods
// the REST handlers use. It signals done on the first read error, which is
// the client disconnecting in the common case.
func (h *Handlers) readInbound(conn *websocket.Conn, pairingID string, done chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		var in streamInbound
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		h.handleInbound(pairingID, in)
	}
}

func (h *Handlers) handleInbound(pairingID string, in streamInbound) {
	switch in.Type {
	case "approval_response":
		if err := h.Queues.RespondApproval(pairingID, in.RequestID, in.Approved); err != nil {
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("stream approval response failed")
		}
	case "question_response":
		answer, err := decodeQuestionAnswer(in.Answer)
		if err != nil {
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("stream question answer malformed")
			return
		}
		if err := h.Queues.RespondQuestion(pairingID, in.QuestionID, answer); err != nil {
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("stream question response failed")
		}
	case "mode_change":
		if _, err := h.Queues.SetMode(pairingID, in.Mode); err != nil {
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("stream mode change failed")
			return
		}
		if h.Hub != nil {
			h.Hub.Publish(pairingID, relayhub.Hint{Kind: relayhub.HintMode})
		}
	case "state_request":
		// Ignored: state_sync is sent once, on connect; later state
		// arrives only through hint-driven frames.
	}
}
