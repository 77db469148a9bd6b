package synccore

import "fmt"

// ApprovalResponseMessage is an outbound approve/reject decision.
type ApprovalResponseMessage struct {
	PairingID string `json:"pairingId"`
	RequestID string `json:"-"`
	Approved  bool   `json:"approved"`
}

// RestPath implements the polling transport's REST fallback for an
// outbound message that has no natural streaming-only shape.
func (m ApprovalResponseMessage) RestPath() string {
	return fmt.Sprintf("/approval/%s", m.RequestID)
}

// QuestionResponseMessage is an outbound answer to a question.
type QuestionResponseMessage struct {
	PairingID  string `json:"pairingId"`
	QuestionID string `json:"-"`
	Answer     any    `json:"answer"`
}

// RestPath implements the polling transport's REST fallback.
func (m QuestionResponseMessage) RestPath() string {
	return fmt.Sprintf("/question/%s", m.QuestionID)
}

// ModeChangeMessage requests a mode transition (e.g. into auto-accept).
type ModeChangeMessage struct {
	PairingID string `json:"pairingId"`
	Mode      string `json:"mode"`
}

// RestPath implements the polling transport's REST fallback: the relay's
// session-mode endpoint takes the same {pairingId, mode} body.
func (m ModeChangeMessage) RestPath() string {
	return "/session-mode"
}

// StateRequestMessage asks for a fresh full state snapshot.
type StateRequestMessage struct {
	PairingID string `json:"pairingId"`
}

// RestPath has no REST equivalent; a polling transport already re-fetches
// full state every interval, so this message is a streaming-only nicety.
func (m StateRequestMessage) RestPath() string {
	return ""
}
