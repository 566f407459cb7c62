package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/loykin/shellvisr/internal/history"
	"github.com/loykin/shellvisr/internal/shell"
)

type recordingSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (s *recordingSink) Send(_ context.Context, e history.Event) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) types() []history.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func hasType(ts []history.EventType, want history.EventType) bool {
	for _, t := range ts {
		if t == want {
			return true
		}
	}
	return false
}

func TestLifecycleEventsReachSink(t *testing.T) {
	m := newTestManager(t, nil)
	sink := &recordingSink{}
	m.SetHistorySinks(sink)

	r, err := m.Spawn(shell.SpawnOptions{Command: []string{"sleep", "30"}, Label: "dl"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if _, err := m.Terminate(r.ID, true, 0); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := m.Remove(r.ID, true); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Delivery is fire-and-forget; give the sends a moment.
	waitFor(t, 5*time.Second, func() bool {
		ts := sink.types()
		return hasType(ts, history.EventSpawned) &&
			hasType(ts, history.EventExited) &&
			hasType(ts, history.EventRemoved)
	})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		if e.ShellID != r.ID {
			t.Fatalf("event for wrong shell: %+v", e)
		}
		if e.Type == history.EventSpawned && e.PID != r.PID {
			t.Fatalf("spawned event pid = %d, want %d", e.PID, r.PID)
		}
	}
}
