package factory

import (
	"context"
	"testing"
	"time"

	"github.com/agentbox/agentbox/internal/history"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://:memory:")
	if err != nil {
		t.Fatalf("sqlite DSN: %v", err)
	}
	e := history.Event{OccurredAt: time.Now(), Trigger: "oom-killer"}
	if err := sink.Send(context.Background(), e); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestNewSinkFromDSNPathDefaultsToSQLite(t *testing.T) {
	path := t.TempDir() + "/events.db"
	sink, err := NewSinkFromDSN(path)
	if err != nil {
		t.Fatalf("path DSN: %v", err)
	}
	if err := sink.Send(context.Background(), history.Event{OccurredAt: time.Now(), Trigger: "manual"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Fatalf("empty DSN should fail")
	}
	if _, err := NewSinkFromDSN("redis://localhost"); err == nil {
		t.Fatalf("unsupported scheme should fail")
	}
}
