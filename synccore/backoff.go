package synccore

import (
	"math"
	"math/rand"
	"time"
)

const (
	backoffBase       = time.Second
	backoffMax        = 60 * time.Second
	backoffJitter     = 0.2
	backoffMaxRetries = 10
)

// ReconnectBackoff computes truncated exponential reconnect delays with
// ±20% jitter: delay(n) = min(base·2ⁿ, 60s) · (1 ± 0.2·U). It resets to
// attempt zero on a reachability change, a foreground transition, or a
// successful handshake.
type ReconnectBackoff struct {
	attempt int
}

// NextDelay returns the delay before the next connection attempt and
// advances the internal attempt counter. ok is false once maxRetries has
// been exhausted; the caller should stop retrying.
func (b *ReconnectBackoff) NextDelay() (delay time.Duration, ok bool) {
	if b.attempt >= backoffMaxRetries {
		return 0, false
	}
	base := float64(backoffBase) * math.Pow(2, float64(b.attempt))
	if base > float64(backoffMax) {
		base = float64(backoffMax)
	}
	jitter := 1 + backoffJitter*(2*rand.Float64()-1)
	b.attempt++
	return time.Duration(base * jitter), true
}

// Attempt returns the number of attempts made since the last Reset.
func (b *ReconnectBackoff) Attempt() int {
	return b.attempt
}

// Reset zeroes the attempt counter.
func (b *ReconnectBackoff) Reset() {
	b.attempt = 0
}
