// Package push implements the relay's best-effort push dispatcher: it signs
// a short-lived JWT and hands a content-free hint to a provider transport,
// recording the attempt for diagnostics. Failures never propagate to the
// enqueuing caller.
package push

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"github.com/claude-watch/relay/apperror"
	"github.com/claude-watch/relay/kv"
	"github.com/claude-watch/relay/log"
	"github.com/claude-watch/relay/relayhub"
)

const (
	receiptTTL    = 60 * time.Second
	receiptKeyPre = "push/receipt/"
	tokenIssuer   = "claude-watch-relay"
)

// Provider sends a signed push payload to whatever notification service is
// configured (APNs, FCM, ...). Tests and early deployments can supply a
// no-op or logging implementation.
type Provider interface {
	Send(token string, payload Payload) error
}

// Payload is the content-free hint delivered to the push provider. It names
// only enough for the client to know it should poll.
type Payload struct {
	PairingID string            `json:"pairingId"`
	Kind      relayhub.HintKind `json:"kind"`
	ID        string            `json:"id,omitempty"`
}

// Receipt is a write-only diagnostic record of one dispatch attempt. It is
// never read by any client-facing endpoint — it must not become a second
// delivery channel alongside polling.
type Receipt struct {
	PairingID      string            `json:"pairingId"`
	Kind           relayhub.HintKind `json:"kind"`
	ID             string            `json:"id,omitempty"`
	SentAt         time.Time         `json:"sentAt"`
	ProviderStatus string            `json:"providerStatus"`
}

// Dispatcher signs auth tokens, rate-limits dispatch, and delegates delivery
// to a Provider.
type Dispatcher struct {
	kv       *kv.Store
	provider Provider
	hub      *relayhub.Hub
	signKey  *ecdsa.PrivateKey
	limiter  *rate.Limiter
	tokenTTL time.Duration
}

// Config configures a Dispatcher.
type Config struct {
	SigningKeyPath string
	TokenTTL       time.Duration
	RateLimitPerS  float64
	RateLimitBurst int
}

// New loads the EC signing key from cfg.SigningKeyPath and constructs a
// Dispatcher. If cfg.SigningKeyPath is empty, push is disabled and Dispatch
// becomes a silent no-op (useful for local development without a configured
// provider).
func New(store *kv.Store, hub *relayhub.Hub, provider Provider, cfg Config) (*Dispatcher, error) {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	d := &Dispatcher{kv: store, provider: provider, hub: hub, tokenTTL: ttl}

	perSecond := cfg.RateLimitPerS
	if perSecond <= 0 {
		perSecond = 5
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 10
	}
	d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)

	if cfg.SigningKeyPath == "" {
		return d, nil
	}

	raw, err := os.ReadFile(cfg.SigningKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read push signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("push signing key is not valid PEM")
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse push signing key: %w", err)
	}
	d.signKey = key

	return d, nil
}

// signToken produces a short-lived ES256 JWT for the provider's auth header.
func (d *Dispatcher) signToken(ttl time.Duration) (string, error) {
	if d.signKey == nil {
		return "", apperror.New(apperror.UpstreamUnavailable, "push signing key not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	return token.SignedString(d.signKey)
}

// Dispatch sends a best-effort push hint for (pairingId, kind, id). It never
// returns an error to the caller; failures are logged and recorded as a
// Receipt.
func (d *Dispatcher) Dispatch(pairingID string, kind relayhub.HintKind, id string) {
	hint := relayhub.Hint{Kind: kind, ID: id}
	d.hub.Publish(pairingID, hint)

	if d.provider == nil || d.signKey == nil {
		return
	}

	status := "sent"
	if !d.limiter.Allow() {
		status = "rate_limited"
	} else {
		token, err := d.signToken(d.tokenTTL)
		if err != nil {
			status = "sign_failed"
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("push token signing failed")
		} else if err := d.provider.Send(token, Payload{PairingID: pairingID, Kind: kind, ID: id}); err != nil {
			status = "send_failed"
			log.Warn().Err(err).Str("pairingId", pairingID).Msg("push dispatch failed")
		}
	}

	d.recordReceipt(pairingID, kind, id, status)
}

func (d *Dispatcher) recordReceipt(pairingID string, kind relayhub.HintKind, id, status string) {
	receipt := Receipt{
		PairingID:      pairingID,
		Kind:           kind,
		ID:             id,
		SentAt:         time.Now(),
		ProviderStatus: status,
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		return
	}
	key := receiptKeyPre + pairingID + "/" + strconv.FormatInt(receipt.SentAt.UnixNano(), 10)
	if _, err := d.kv.Put(key, raw, receiptTTL); err != nil {
		log.Debug().Err(err).Msg("failed to record push receipt")
	}
}
