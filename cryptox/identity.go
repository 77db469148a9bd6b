// Package cryptox implements the end-to-end encryption layer shared by the
// relay's two endpoints: X25519 key exchange, HKDF-SHA256 key derivation,
// and an XChaCha20-Poly1305 record layer. The relay itself never holds a
// private key — only the two endpoints exchange them, once, at pair time.
package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/crypto/curve25519"

	"github.com/claude-watch/relay/apperror"
	"github.com/claude-watch/relay/log"
)

// Identity holds an endpoint's long-term X25519 key pair and, once learned
// from the relay during pairing, the peer's public key.
type Identity struct {
	mu         sync.RWMutex
	path       string
	privateKey [32]byte
	publicKey  [32]byte
	peerPublic *[32]byte
	watcher    *fsnotify.Watcher
}

type persistedIdentity struct {
	PrivateKey string `json:"privateKey"`
	PeerPublic string `json:"peerPublic,omitempty"`
}

// Load reads the identity at path, generating and persisting a fresh X25519
// key pair if no file exists yet.
func Load(path string) (*Identity, error) {
	id := &Identity{path: path}
	if err := id.loadOrGenerate(); err != nil {
		return nil, err
	}
	return id, nil
}

func (id *Identity) loadOrGenerate() error {
	raw, err := os.ReadFile(id.path)
	if os.IsNotExist(err) {
		return id.generateAndPersist()
	}
	if err != nil {
		return apperror.Wrap(apperror.Crypto, "failed to read identity file", err)
	}

	var p persistedIdentity
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.Wrap(apperror.Crypto, "failed to parse identity file", err)
	}

	priv, err := base64.StdEncoding.DecodeString(p.PrivateKey)
	if err != nil || len(priv) != 32 {
		return apperror.New(apperror.Crypto, "identity file has malformed private key")
	}

	id.mu.Lock()
	copy(id.privateKey[:], priv)
	pub, err := curve25519.X25519(id.privateKey[:], curve25519.Basepoint)
	if err != nil {
		id.mu.Unlock()
		return apperror.Wrap(apperror.Crypto, "failed to derive public key", err)
	}
	copy(id.publicKey[:], pub)
	if p.PeerPublic != "" {
		peer, err := base64.StdEncoding.DecodeString(p.PeerPublic)
		if err == nil && len(peer) == 32 {
			var pk [32]byte
			copy(pk[:], peer)
			id.peerPublic = &pk
		}
	}
	id.mu.Unlock()

	return nil
}

func (id *Identity) generateAndPersist() error {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return apperror.Wrap(apperror.Crypto, "failed to generate identity key", err)
	}
	// Clamp per the X25519 spec so the scalar is a valid Curve25519 private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return apperror.Wrap(apperror.Crypto, "failed to derive public key", err)
	}

	id.mu.Lock()
	id.privateKey = priv
	copy(id.publicKey[:], pub)
	id.mu.Unlock()

	return id.persist()
}

func (id *Identity) persist() error {
	id.mu.RLock()
	p := persistedIdentity{PrivateKey: base64.StdEncoding.EncodeToString(id.privateKey[:])}
	if id.peerPublic != nil {
		p.PeerPublic = base64.StdEncoding.EncodeToString(id.peerPublic[:])
	}
	id.mu.RUnlock()

	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return apperror.Wrap(apperror.Crypto, "failed to marshal identity", err)
	}
	if dir := filepath.Dir(id.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return apperror.Wrap(apperror.Crypto, "failed to create identity directory", err)
		}
	}
	return os.WriteFile(id.path, raw, 0o600)
}

// PublicKey returns this endpoint's base64-encoded X25519 public key, safe
// to hand to the relay during pairing.
func (id *Identity) PublicKey() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return base64.StdEncoding.EncodeToString(id.publicKey[:])
}

// SetPeerPublicKey records the other endpoint's public key (learned from the
// relay at pair completion) and persists it alongside the private key.
func (id *Identity) SetPeerPublicKey(encoded string) error {
	peer, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(peer) != 32 {
		return apperror.New(apperror.Crypto, "peer public key is malformed")
	}
	var pk [32]byte
	copy(pk[:], peer)

	id.mu.Lock()
	id.peerPublic = &pk
	id.mu.Unlock()

	return id.persist()
}

// ClearPeer drops the learned peer public key, used on unpair.
func (id *Identity) ClearPeer() error {
	id.mu.Lock()
	id.peerPublic = nil
	id.mu.Unlock()
	return id.persist()
}

// SharedSecret derives the 32-byte symmetric session key via X25519 + HKDF.
// Returns apperror.Crypto if the peer's public key has not yet been learned.
func (id *Identity) SharedSecret() ([]byte, error) {
	id.mu.RLock()
	priv := id.privateKey
	peer := id.peerPublic
	id.mu.RUnlock()

	if peer == nil {
		return nil, apperror.New(apperror.Crypto, "peer public key not yet known")
	}
	return DeriveSessionKey(priv[:], peer[:])
}

// WatchForRotation starts an fsnotify watch on the identity file so an
// externally rotated key (e.g. replaced by an operator) is reloaded without
// a process restart. Returns a stop function.
func (id *Identity) WatchForRotation() (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperror.Wrap(apperror.Crypto, "failed to start identity watcher", err)
	}
	if err := w.Add(filepath.Dir(id.path)); err != nil {
		w.Close()
		return nil, apperror.Wrap(apperror.Crypto, "failed to watch identity directory", err)
	}
	id.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != id.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if err := id.loadOrGenerate(); err != nil {
						log.Warn().Err(err).Msg("identity reload failed")
					} else {
						log.Info().Msg("identity reloaded after external change")
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("identity watcher error")
			}
		}
	}()

	return func() { w.Close() }, nil
}
