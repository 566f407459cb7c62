package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/shellvisr/internal/history"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Create sink
	sink, err := New(connStr)
	if err != nil {
		t.Fatalf("Failed to create PostgreSQL sink: %v", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			t.Errorf("Failed to close sink: %v", err)
		}
	}()

	spawnEvent := history.Event{
		Type:       history.EventSpawned,
		OccurredAt: time.Now().UTC(),
		ShellID:    "fs_1700000000_deadbeef",
		RunID:      "run_1700000000123_cafebabe",
		Label:      "etl-shell",
		PID:        12345,
		Status:     "running",
	}

	// Send spawn event
	if err := sink.Send(ctx, spawnEvent); err != nil {
		t.Fatalf("Failed to send spawn event: %v", err)
	}

	// Exit event carries the exit code
	code := 137
	exitEvent := spawnEvent
	exitEvent.Type = history.EventExited
	exitEvent.OccurredAt = time.Now().UTC()
	exitEvent.Status = "exited"
	exitEvent.ExitCode = &code

	if err := sink.Send(ctx, exitEvent); err != nil {
		t.Fatalf("Failed to send exit event: %v", err)
	}

	// Verify events were stored
	rows, err := sink.db.QueryContext(ctx, "SELECT COUNT(*) FROM shell_history WHERE shell_id = $1", spawnEvent.ShellID)
	if err != nil {
		t.Fatalf("Failed to query shell_history: %v", err)
	}
	defer func() { _ = rows.Close() }()

	var count int
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			t.Fatalf("Failed to scan count: %v", err)
		}
	}

	if count != 2 {
		t.Errorf("Expected 2 events in history, got %d", count)
	}
}
