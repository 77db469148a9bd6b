package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/claude-watch/relay/apperror"
)

// hkdfInfo is the fixed context string binding every derived session key to
// this protocol, per spec.
const hkdfInfo = "claude-watch-e2e"

// DeriveSessionKey computes the X25519 agreement between privateKey and
// peerPublicKey, then stretches it through HKDF-SHA256 (empty salt, the
// fixed context string) into a 32-byte symmetric key.
func DeriveSessionKey(privateKey, peerPublicKey []byte) ([]byte, error) {
	shared, err := curve25519.X25519(privateKey, peerPublicKey)
	if err != nil {
		return nil, apperror.Wrap(apperror.Crypto, "X25519 agreement failed", err)
	}

	kdf := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, apperror.Wrap(apperror.Crypto, "HKDF expansion failed", err)
	}
	return key, nil
}

// Seal encrypts plaintext under key using XChaCha20-Poly1305 with a fresh
// random nonce, returning the base64-encoded `nonce || ciphertext || tag`
// wire frame. additionalData may be nil.
func Seal(key, plaintext, additionalData []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", apperror.Wrap(apperror.Crypto, "failed to construct AEAD", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", apperror.Wrap(apperror.Crypto, "failed to generate nonce", err)
	}

	sealed := aead.Seal(nonce, nonce, plaintext, additionalData)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal: decodes the base64 frame and authenticates/decrypts it
// under key. Returns apperror.Crypto on any failure (malformed frame, bad
// tag) without distinguishing the cause, so callers cannot be used as a
// padding/authentication oracle.
func Open(key []byte, frame string, additionalData []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(frame)
	if err != nil {
		return nil, apperror.New(apperror.Crypto, "record authentication failed")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, apperror.Wrap(apperror.Crypto, "failed to construct AEAD", err)
	}

	if len(raw) < aead.NonceSize() {
		return nil, apperror.New(apperror.Crypto, "record authentication failed")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, apperror.New(apperror.Crypto, "record authentication failed")
	}
	return plaintext, nil
}
