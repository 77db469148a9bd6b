package queue

import (
	"encoding/json"
	"time"

	"github.com/claude-watch/relay/apperror"
)

// ModeManual and ModeAutoAccept are the two pairing modes the watch client
// can request. ModeAutoAccept makes the client approve every pending request
// at high priority the moment it observes it, without user input.
const (
	ModeManual     = "manual"
	ModeAutoAccept = "auto-accept"
)

// SessionControl is the per-pairing Active/Paused/Ended state machine. It is
// created lazily on first use and cleared on session-end.
type SessionControl struct {
	Active          bool      `json:"active"`
	Interrupted     bool      `json:"interrupted"`
	InterruptAction string    `json:"interruptAction,omitempty"` // "stop" when Interrupted, "" otherwise
	Ended           bool      `json:"ended"`
	Mode            string    `json:"mode"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func controlKey(pairingID string) string {
	return controlPrefix + pairingID
}

func defaultControl() SessionControl {
	return SessionControl{Active: true, Mode: ModeManual, UpdatedAt: time.Now()}
}

// SessionStatus returns the current control state, creating it (Active) on
// first use.
func (q *Queues) SessionStatus(pairingID string) (SessionControl, error) {
	raw, _, err := q.kv.Get(controlKey(pairingID))
	if apperror.CodeOf(err) == apperror.NotFound {
		sc := defaultControl()
		return sc, q.putControl(pairingID, sc)
	}
	if err != nil {
		return SessionControl{}, err
	}
	var sc SessionControl
	if err := json.Unmarshal(raw, &sc); err != nil {
		return SessionControl{}, apperror.Wrap(apperror.InvalidInput, "corrupt session control state", err)
	}
	if sc.Mode == "" {
		sc.Mode = ModeManual
	}
	return sc, nil
}

func (q *Queues) putControl(pairingID string, sc SessionControl) error {
	raw, err := json.Marshal(sc)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "marshal session control state", err)
	}
	_, err = q.kv.Put(controlKey(pairingID), raw, 0)
	return err
}

// Stop transitions Active to Paused. A call while already Paused is a no-op.
// A call after Ended returns apperror.Conflict.
func (q *Queues) Stop(pairingID string) (SessionControl, error) {
	sc, err := q.SessionStatus(pairingID)
	if err != nil {
		return sc, err
	}
	if sc.Ended {
		return sc, apperror.New(apperror.Conflict, "session has ended")
	}
	if sc.Interrupted {
		return sc, nil
	}
	sc.Interrupted = true
	sc.InterruptAction = "stop"
	sc.UpdatedAt = time.Now()
	return sc, q.putControl(pairingID, sc)
}

// Resume transitions Paused back to Active.
func (q *Queues) Resume(pairingID string) (SessionControl, error) {
	return q.clearInterrupt(pairingID)
}

// Clear transitions Paused back to Active, identical to Resume but reached
// via the "clear" edge rather than "resume".
func (q *Queues) Clear(pairingID string) (SessionControl, error) {
	return q.clearInterrupt(pairingID)
}

func (q *Queues) clearInterrupt(pairingID string) (SessionControl, error) {
	sc, err := q.SessionStatus(pairingID)
	if err != nil {
		return sc, err
	}
	if sc.Ended {
		return sc, apperror.New(apperror.Conflict, "session has ended")
	}
	if !sc.Interrupted {
		return sc, nil
	}
	sc.Interrupted = false
	sc.InterruptAction = ""
	sc.UpdatedAt = time.Now()
	return sc, q.putControl(pairingID, sc)
}

// SetMode records the pairing's mode (manual or auto-accept) and returns the
// updated control state. A call after Ended returns apperror.Conflict.
func (q *Queues) SetMode(pairingID, mode string) (SessionControl, error) {
	if mode != ModeManual && mode != ModeAutoAccept {
		return SessionControl{}, apperror.New(apperror.InvalidInput, "mode must be manual or auto-accept")
	}
	sc, err := q.SessionStatus(pairingID)
	if err != nil {
		return sc, err
	}
	if sc.Ended {
		return sc, apperror.New(apperror.Conflict, "session has ended")
	}
	sc.Mode = mode
	sc.UpdatedAt = time.Now()
	return sc, q.putControl(pairingID, sc)
}

// End transitions the session to the terminal Ended state, draining the
// approval/question queues and clearing the progress snapshot.
func (q *Queues) End(pairingID string) error {
	sc, err := q.SessionStatus(pairingID)
	if err != nil {
		return err
	}
	sc.Active = false
	sc.Ended = true
	sc.Interrupted = false
	sc.InterruptAction = ""
	sc.UpdatedAt = time.Now()
	if err := q.putControl(pairingID, sc); err != nil {
		return err
	}

	if err := q.DrainApprovals(pairingID); err != nil {
		return err
	}
	if err := q.DrainQuestions(pairingID); err != nil {
		return err
	}
	return q.ClearProgress(pairingID)
}
