package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/apperror"
	"github.com/claude-watch/relay/queue"
	"github.com/claude-watch/relay/relayhub"
)

type createQuestionRequest struct {
	PairingID         string   `json:"pairingId"`
	QuestionID        string   `json:"questionId"`
	Question          string   `json:"question"`
	Header            string   `json:"header"`
	Options           []string `json:"options"`
	MultiSelect       bool     `json:"multiSelect"`
	RecommendedAnswer string   `json:"recommendedAnswer"`
}

// CreateQuestion handles POST /question.
func (h *Handlers) CreateQuestion(c *gin.Context) {
	var req createQuestionRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	err := h.Queues.EnqueueQuestion(req.PairingID, queue.QuestionRequest{
		QuestionID:        req.QuestionID,
		Question:          req.Question,
		Header:            req.Header,
		Options:           req.Options,
		MultiSelect:       req.MultiSelect,
		RecommendedAnswer: req.RecommendedAnswer,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	if h.Push != nil {
		h.Push.Dispatch(req.PairingID, relayhub.HintQuestion, req.QuestionID)
	}

	RespondData(c, gin.H{"success": true, "questionId": req.QuestionID})
}

// QuestionQueue handles GET /question-queue/{pairingId}.
func (h *Handlers) QuestionQueue(c *gin.Context) {
	pairingID := c.Param("pairingId")

	questions, err := h.Queues.FetchPendingQuestions(pairingID)
	if err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"questions": questions, "totalCount": len(questions)})
}

type respondQuestionRequest struct {
	PairingID string          `json:"pairingId"`
	Answer    json.RawMessage `json:"answer"`
}

// RespondToQuestion handles POST /question/{questionId}.
func (h *Handlers) RespondToQuestion(c *gin.Context) {
	questionID := c.Param("questionId")

	var req respondQuestionRequest
	if err := BindJSON(c, &req); err != nil {
		RespondError(c, err)
		return
	}

	answer, err := decodeQuestionAnswer(req.Answer)
	if err != nil {
		RespondError(c, err)
		return
	}

	if err := h.Queues.RespondQuestion(req.PairingID, questionID, answer); err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"success": true})
}

// QuestionResponse handles GET /question/{pairingId}/{questionId}.
func (h *Handlers) QuestionResponse(c *gin.Context) {
	pairingID := c.Param("pairingId")
	questionID := c.Param("questionId")

	status, answer, err := h.Queues.FetchQuestionResponse(pairingID, questionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	if status == queue.ResponseNotFound {
		RespondNotFound(c, "question not found")
		return
	}

	RespondData(c, gin.H{"id": questionID, "status": status, "answer": answer})
}

// ClearQuestionQueue handles DELETE /question-queue/{pairingId}.
func (h *Handlers) ClearQuestionQueue(c *gin.Context) {
	pairingID := c.Param("pairingId")

	if err := h.Queues.DrainQuestions(pairingID); err != nil {
		RespondError(c, err)
		return
	}

	RespondData(c, gin.H{"success": true})
}

// decodeQuestionAnswer accepts the three shapes answer can take on the wire:
// a single index, an array of indices, or the HANDLE_ON_MAC sentinel string.
func decodeQuestionAnswer(raw json.RawMessage) (queue.QuestionAnswer, error) {
	var sentinel string
	if err := json.Unmarshal(raw, &sentinel); err == nil {
		if sentinel == queue.HandleOnMac {
			return queue.QuestionAnswer{Handled: sentinel}, nil
		}
		return queue.QuestionAnswer{}, apperror.New(apperror.InvalidInput, "INVALID_ANSWER: unrecognized string answer")
	}

	var indices []int
	if err := json.Unmarshal(raw, &indices); err == nil {
		return queue.QuestionAnswer{Indices: indices}, nil
	}

	var index int
	if err := json.Unmarshal(raw, &index); err == nil {
		return queue.QuestionAnswer{Index: &index}, nil
	}

	return queue.QuestionAnswer{}, apperror.New(apperror.InvalidInput, "INVALID_ANSWER: malformed answer")
}
