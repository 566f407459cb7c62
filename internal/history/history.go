package history

import (
	"context"
	"time"
)

// EventType defines the kind of shell lifecycle event.
type EventType string

const (
	EventSpawned   EventType = "spawned"
	EventAdopted   EventType = "adopted"
	EventExited    EventType = "exited"
	EventRestarted EventType = "restarted"
	EventRemoved   EventType = "removed"
)

// Event is one lifecycle transition exported to external systems. It is a
// flat snapshot of the record at the moment of the transition; for exited
// events PID is the pid the shell had while running.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ShellID    string    `json:"shell_id"`
	RunID      string    `json:"run_id"`
	Label      string    `json:"label,omitempty"`
	PID        int       `json:"pid"`
	Status     string    `json:"status"`
	ExitCode   *int      `json:"exit_code,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
