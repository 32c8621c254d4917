// Package phase runs named, idempotent configuration steps exactly once
// across repeated bootstrap invocations, backed by the marker store.
package phase

import (
	"context"
	"fmt"

	"github.com/agentbox/agentbox/internal/marker"
)

// FailureMode defines how a phase failure affects the sequence.
type FailureMode string

const (
	// FailureModeFail aborts the remaining phases. This is the default:
	// a partial environment is surfaced immediately, not papered over.
	FailureModeFail FailureMode = "fail"
	// FailureModeIgnore logs the failure and continues. Used for
	// optional tooling that must not block the bootstrap.
	FailureModeIgnore FailureMode = "ignore"
)

// Phase is one idempotent configuration step. Actions must be safe to
// run against an already-configured system: a marker can be cleared and
// the phase re-run at any time.
type Phase struct {
	Name        string
	Description string
	FailureMode FailureMode
	Run         func(ctx context.Context) error
}

// Validate checks the phase definition.
func (p Phase) Validate() error {
	if err := marker.ValidateName(p.Name); err != nil {
		return err
	}
	if p.Run == nil {
		return fmt.Errorf("phase %s: nil action", p.Name)
	}
	switch p.FailureMode {
	case "", FailureModeFail, FailureModeIgnore:
		return nil
	default:
		return fmt.Errorf("phase %s: unknown failure mode %q", p.Name, p.FailureMode)
	}
}

// mode returns the effective failure mode (fail when unset).
func (p Phase) mode() FailureMode {
	if p.FailureMode == "" {
		return FailureModeFail
	}
	return p.FailureMode
}
