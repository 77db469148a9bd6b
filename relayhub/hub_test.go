package relayhub_test

import (
	"testing"
	"time"

	"github.com/claude-watch/relay/relayhub"
)

func TestPublishDeliversToSubscribersOfThatPairingOnly(t *testing.T) {
	h := relayhub.New()

	chA, unsubA := h.Subscribe("pair-a")
	defer unsubA()
	chB, unsubB := h.Subscribe("pair-b")
	defer unsubB()

	h.Publish("pair-a", relayhub.Hint{Kind: relayhub.HintApproval, ID: "req-1"})

	select {
	case hint := <-chA:
		if hint.ID != "req-1" {
			t.Fatalf("hint.ID = %q, want req-1", hint.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hint on pair-a")
	}

	select {
	case hint := <-chB:
		t.Fatalf("unexpected hint delivered to pair-b: %+v", hint)
	default:
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	h := relayhub.New()
	ch, unsubscribe := h.Subscribe("pair-a")
	unsubscribe()

	h.Publish("pair-a", relayhub.Hint{Kind: relayhub.HintProgress})

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestSubscriberCount(t *testing.T) {
	h := relayhub.New()
	if h.SubscriberCount("pair-a") != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0 before any subscription", h.SubscriberCount("pair-a"))
	}
	_, unsubscribe := h.Subscribe("pair-a")
	defer unsubscribe()
	if h.SubscriberCount("pair-a") != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", h.SubscriberCount("pair-a"))
	}
}

func TestPublishToSlowSubscriberDoesNotBlock(t *testing.T) {
	h := relayhub.New()
	_, unsubscribe := h.Subscribe("pair-a")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 32; i++ {
			h.Publish("pair-a", relayhub.Hint{Kind: relayhub.HintApproval})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full subscriber channel")
	}
}
