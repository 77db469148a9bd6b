// Package pairing implements the relay's pairing registry:
// short-lived code→session mappings plus long-lived pairingId→connection
// records, each endpoint's public key carried along for the crypto module.
package pairing

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/claude-watch/relay/apperror"
	"github.com/claude-watch/relay/kv"
)

const (
	sessionTTL        = 5 * time.Minute
	completedSessionTTL = 60 * time.Second
	connectionTTL     = 24 * time.Hour

	codeKeyPrefix  = "pairing/code/"
	watchKeyPrefix = "pairing/watch/"
	connKeyPrefix  = "pairing/conn/"
)

// Session is a PairingSession: the live state of one
// initiate→complete handshake.
type Session struct {
	Code           string    `json:"code"`
	WatchID        string    `json:"watchId"`
	DeviceToken    string    `json:"deviceToken"`
	WatchPublicKey string    `json:"watchPublicKey"`
	CLIPublicKey   string    `json:"cliPublicKey,omitempty"`
	Paired         bool      `json:"paired"`
	PairingID      string    `json:"pairingId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Connection is the long-lived record created once a pairing completes.
type Connection struct {
	PairingID   string    `json:"pairingId"`
	DeviceToken string    `json:"deviceToken"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// Registry is the pairing registry, backed by the KV fabric.
type Registry struct {
	kv            *kv.Store
	codeLength    int
	maxCollisions int
}

// New constructs a Registry over store. codeLength is the number of decimal
// digits in a generated code; maxCollisions bounds the
// initiate retry loop on code collision.
func New(store *kv.Store, codeLength, maxCollisions int) *Registry {
	if codeLength <= 0 {
		codeLength = 6
	}
	if maxCollisions <= 0 {
		maxCollisions = 10
	}
	return &Registry{kv: store, codeLength: codeLength, maxCollisions: maxCollisions}
}

// Initiate generates a unique pairing code and stores a fresh Session,
// keyed by both the code and the watchId. Returns
// apperror.Exhausted if no unique code could be found within the
// configured retry bound.
func (r *Registry) Initiate(deviceToken, watchPublicKey string) (code string, watchID string, err error) {
	watchID = uuid.NewString()

	for attempt := 0; attempt < r.maxCollisions; attempt++ {
		candidate, genErr := generateCode(r.codeLength)
		if genErr != nil {
			return "", "", apperror.Wrap(apperror.Crypto, "failed to generate pairing code", genErr)
		}

		session := Session{
			Code:           candidate,
			WatchID:        watchID,
			DeviceToken:    deviceToken,
			WatchPublicKey: watchPublicKey,
			CreatedAt:      time.Now().UTC(),
		}
		payload, marshalErr := json.Marshal(session)
		if marshalErr != nil {
			return "", "", apperror.Wrap(apperror.InvalidInput, "failed to encode pairing session", marshalErr)
		}

		// Collision check: CompareAndSwap against version 0 rejects
		// an already-live code (code uniqueness).
		if _, casErr := r.kv.CompareAndSwap(codeKeyPrefix+candidate, 0, payload, sessionTTL); casErr != nil {
			if apperror.CodeOf(casErr) == apperror.Conflict {
				continue
			}
			return "", "", casErr
		}

		if _, putErr := r.kv.Put(watchKeyPrefix+watchID, payload, sessionTTL); putErr != nil {
			return "", "", putErr
		}

		return candidate, watchID, nil
	}

	return "", "", apperror.New(apperror.Exhausted, "could not generate a unique pairing code")
}

// Status reports the pairing state for watchID, for the watch client's
// repeated polling.
func (r *Registry) Status(watchID string) (paired bool, pairingID, cliPublicKey string, err error) {
	raw, _, err := r.kv.Get(watchKeyPrefix + watchID)
	if err != nil {
		return false, "", "", err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return false, "", "", apperror.Wrap(apperror.InvalidInput, "corrupt pairing session", err)
	}
	return session.Paired, session.PairingID, session.CLIPublicKey, nil
}

// Complete finalizes a pairing by code: idempotent by code, it creates a
// Connection record on first call and returns the same pairingId on every
// subsequent call made while the session is still alive.
func (r *Registry) Complete(code, deviceToken, cliPublicKey string) (pairingID, watchPublicKey string, err error) {
	raw, version, err := r.kv.Get(codeKeyPrefix + code)
	if err != nil {
		return "", "", err
	}
	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return "", "", apperror.Wrap(apperror.InvalidInput, "corrupt pairing session", err)
	}

	if session.Paired {
		// Idempotent replay: same code, already completed.
		return session.PairingID, session.WatchPublicKey, nil
	}

	session.Paired = true
	session.PairingID = uuid.NewString()
	session.CLIPublicKey = cliPublicKey
	if deviceToken != "" {
		session.DeviceToken = deviceToken
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return "", "", apperror.Wrap(apperror.InvalidInput, "failed to encode pairing session", err)
	}

	if _, err := r.kv.CompareAndSwap(codeKeyPrefix+code, version, payload, completedSessionTTL); err != nil {
		return "", "", err
	}
	if _, err := r.kv.Put(watchKeyPrefix+session.WatchID, payload, completedSessionTTL); err != nil {
		return "", "", err
	}

	conn := Connection{
		PairingID:   session.PairingID,
		DeviceToken: session.DeviceToken,
		CreatedAt:   time.Now().UTC(),
		LastSeen:    time.Now().UTC(),
	}
	connPayload, err := json.Marshal(conn)
	if err != nil {
		return "", "", apperror.Wrap(apperror.InvalidInput, "failed to encode connection record", err)
	}
	if _, err := r.kv.Put(connKeyPrefix+session.PairingID, connPayload, connectionTTL); err != nil {
		return "", "", err
	}

	return session.PairingID, session.WatchPublicKey, nil
}

// InitiateLegacyCLI accepts the deprecated "CLI shows code, watch enters
// code" direction for backward compatibility. New callers
// MUST use Initiate instead; this exists only so the relay keeps answering
// the legacy complete/status shape.
func (r *Registry) InitiateLegacyCLI(deviceToken, cliPublicKey string) (code string, watchID string, err error) {
	watchID = uuid.NewString()
	for attempt := 0; attempt < r.maxCollisions; attempt++ {
		candidate, genErr := generateCode(r.codeLength)
		if genErr != nil {
			return "", "", apperror.Wrap(apperror.Crypto, "failed to generate pairing code", genErr)
		}
		session := Session{
			Code:         candidate,
			WatchID:      watchID,
			DeviceToken:  deviceToken,
			CLIPublicKey: cliPublicKey,
			CreatedAt:    time.Now().UTC(),
		}
		payload, marshalErr := json.Marshal(session)
		if marshalErr != nil {
			return "", "", apperror.Wrap(apperror.InvalidInput, "failed to encode pairing session", marshalErr)
		}
		if _, casErr := r.kv.CompareAndSwap(codeKeyPrefix+candidate, 0, payload, sessionTTL); casErr != nil {
			if apperror.CodeOf(casErr) == apperror.Conflict {
				continue
			}
			return "", "", casErr
		}
		if _, putErr := r.kv.Put(watchKeyPrefix+watchID, payload, sessionTTL); putErr != nil {
			return "", "", putErr
		}
		return candidate, watchID, nil
	}
	return "", "", apperror.New(apperror.Exhausted, "could not generate a unique pairing code")
}

// Connection returns the long-lived connection record for pairingID,
// refreshing LastSeen and its TTL.
func (r *Registry) Connection(pairingID string) (*Connection, error) {
	raw, version, err := r.kv.Get(connKeyPrefix + pairingID)
	if err != nil {
		return nil, err
	}
	var conn Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, apperror.Wrap(apperror.InvalidInput, "corrupt connection record", err)
	}
	conn.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(conn)
	if err != nil {
		return nil, apperror.Wrap(apperror.InvalidInput, "failed to encode connection record", err)
	}
	if _, err := r.kv.CompareAndSwap(connKeyPrefix+pairingID, version, payload, connectionTTL); err != nil {
		// A racing refresh lost; the caller doesn't need the freshest
		// LastSeen value, only confirmation the connection is alive.
		return &conn, nil
	}
	return &conn, nil
}

// generateCode produces a uniform n-digit decimal string using crypto/rand.
func generateCode(digits int) (string, error) {
	max := int64(1)
	for i := 0; i < digits; i++ {
		max *= 10
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n.Int64()), nil
}
