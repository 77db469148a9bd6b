package push_test

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/claude-watch/relay/kv"
	"github.com/claude-watch/relay/push"
	"github.com/claude-watch/relay/relayhub"
)

type fakeProvider struct {
	mu   sync.Mutex
	sent []push.Payload
}

func (p *fakeProvider) Send(token string, payload push.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, payload)
	return nil
}

func (p *fakeProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func newTestStore(t *testing.T) *kv.Store {
	t.Helper()
	store, err := kv.Open(kv.Config{Path: filepath.Join(t.TempDir(), "kv.sqlite")})
	if err != nil {
		t.Fatalf("kv.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDispatchWithoutSigningKeyStillPublishesHub(t *testing.T) {
	store := newTestStore(t)
	hub := relayhub.New()
	provider := &fakeProvider{}

	d, err := push.New(store, hub, provider, push.Config{})
	if err != nil {
		t.Fatalf("push.New() error = %v", err)
	}

	ch, unsubscribe := hub.Subscribe("pair-1")
	defer unsubscribe()

	d.Dispatch("pair-1", relayhub.HintApproval, "req-1")

	select {
	case hint := <-ch:
		if hint.ID != "req-1" {
			t.Fatalf("hint.ID = %q, want req-1", hint.ID)
		}
	default:
		t.Fatal("expected a hint to be published even without a signing key")
	}

	// No signing key configured: the provider must never be invoked.
	if provider.count() != 0 {
		t.Fatalf("provider.count() = %d, want 0 when push is unconfigured", provider.count())
	}
}

func TestDispatchNeverErrorsOnMissingProvider(t *testing.T) {
	store := newTestStore(t)
	hub := relayhub.New()

	d, err := push.New(store, hub, nil, push.Config{})
	if err != nil {
		t.Fatalf("push.New() error = %v", err)
	}

	// Must not panic or block despite no provider/signing key configured.
	d.Dispatch("pair-1", relayhub.HintQuestion, "q-1")
}
