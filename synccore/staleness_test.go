package synccore

import (
	"testing"
	"time"

	"github.com/claude-watch/relay/queue"
)

func TestStalenessTrackerClearsCompleteSnapshotQuickly(t *testing.T) {
	now := time.Now()
	s := NewStalenessTracker()
	s.nowFunc = func() time.Time { return now }

	s.Observe(queue.ProgressSnapshot{Progress: 1, CompletedCount: 3, TotalCount: 3})

	now = now.Add(2 * time.Second)
	if _, ok := s.Current(); !ok {
		t.Fatalf("Current() at 2s for complete snapshot = not ok, want ok")
	}

	now = now.Add(2 * time.Second) // 4s total, past the 3s complete threshold
	if _, ok := s.Current(); ok {
		t.Fatalf("Current() at 4s for complete snapshot = ok, want stale")
	}
}

func TestStalenessTrackerKeepsInProgressSnapshotLonger(t *testing.T) {
	now := time.Now()
	s := NewStalenessTracker()
	s.nowFunc = func() time.Time { return now }

	s.Observe(queue.ProgressSnapshot{Progress: 0.5, CompletedCount: 1, TotalCount: 3})

	now = now.Add(200 * time.Second)
	if _, ok := s.Current(); !ok {
		t.Fatalf("Current() at 200s for in-progress snapshot = not ok, want ok")
	}

	now = now.Add(150 * time.Second) // 350s total, past the 300s in-progress threshold
	if _, ok := s.Current(); ok {
		t.Fatalf("Current() at 350s for in-progress snapshot = ok, want stale")
	}
}
