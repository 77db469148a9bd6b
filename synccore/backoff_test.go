package synccore

import "testing"

func TestReconnectBackoffGrowsAndCaps(t *testing.T) {
	var b ReconnectBackoff
	for i := 0; i < backoffMaxRetries; i++ {
		d, ok := b.NextDelay()
		if !ok {
			t.Fatalf("NextDelay() attempt %d: ok = false, want true", i)
		}
		bound := float64(backoffBase) * float64(int64(1)<<uint(i))
		if bound > float64(backoffMax) {
			bound = float64(backoffMax)
		}
		maxAllowed := bound * (1 + backoffJitter)
		if float64(d) > maxAllowed+1 {
			t.Fatalf("NextDelay() attempt %d = %v, want <= %v", i, d, maxAllowed)
		}
	}

	if _, ok := b.NextDelay(); ok {
		t.Fatalf("NextDelay() after %d attempts: ok = true, want false", backoffMaxRetries)
	}

	b.Reset()
	if b.Attempt() != 0 {
		t.Fatalf("Attempt() after Reset = %d, want 0", b.Attempt())
	}
	if _, ok := b.NextDelay(); !ok {
		t.Fatalf("NextDelay() after Reset: ok = false, want true")
	}
}
