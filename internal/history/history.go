package history

import (
	"context"
	"time"
)

// Event is one detected crash, exported to external systems for
// analytics. The free-text crash log under the state dir stays the
// primary record; sinks are additive.
type Event struct {
	OccurredAt  time.Time `json:"occurred_at"`
	Trigger     string    `json:"trigger"` // e.g. "oom-killer"
	MemoryMB    float64   `json:"memory_mb"`
	SwapMB      float64   `json:"swap_mb"`
	TargetProcs int       `json:"target_procs"`
	Sessions    int       `json:"sessions"`
	KernelLine  string    `json:"kernel_line"` // the matched log line
}

// Sink is a destination for crash events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
