package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/shellvisr/internal/history"
)

// Sink sends shell lifecycle events to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(dsn, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	sink := &Sink{
		conn:  conn,
		table: table,
	}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime64(6),
		event_type String,
		shell_id String,
		run_id String,
		label String,
		pid Int64,
		status String,
		exit_code Nullable(Int64)
	) ENGINE = MergeTree()
	ORDER BY (shell_id, occurred_at)`, s.table)

	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create ClickHouse table %s: %w", s.table, err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, event_type, shell_id, run_id, label, pid, status, exit_code) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table)

	var exit *int64
	if e.ExitCode != nil {
		v := int64(*e.ExitCode)
		exit = &v
	}

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		string(e.Type),
		e.ShellID,
		e.RunID,
		e.Label,
		int64(e.PID),
		e.Status,
		exit,
	)

	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
