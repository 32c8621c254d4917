package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/agentbox/agentbox/internal/history"
)

// Sink sends crash events to ClickHouse using the official Go client.
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

	return &Sink{
		conn:  conn,
		table: table,
	}, nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, trigger_reason, memory_mb, swap_mb, target_procs, sessions, kernel_line) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		e.Trigger,
		e.MemoryMB,
		e.SwapMB,
		int32(e.TargetProcs),
		int32(e.Sessions),
		e.KernelLine,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}

	return nil
}
