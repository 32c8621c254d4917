package phase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentbox/agentbox/internal/marker"
	"github.com/agentbox/agentbox/internal/metrics"
)

// Runner executes phases once, consulting the marker store before and
// after each action.
type Runner struct {
	markers *marker.Store
	logger  *slog.Logger
}

// NewRunner builds a Runner. logger may be nil (discards output).
func NewRunner(markers *marker.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{markers: markers, logger: logger}
}

// RunOnce executes p unless a marker for it exists. It returns whether
// the action actually ran. On success a marker is recorded; on failure
// no marker is written, so the next invocation retries from scratch.
func (r *Runner) RunOnce(ctx context.Context, p Phase) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	done, err := r.markers.Done(p.Name)
	if err != nil {
		return false, err
	}
	if done {
		r.logger.Info("phase already completed, skipping", "phase", p.Name)
		metrics.IncPhaseSkipped(p.Name)
		return false, nil
	}
	r.logger.Info("running phase", "phase", p.Name, "description", p.Description)
	if err := p.Run(ctx); err != nil {
		metrics.IncPhaseFailure(p.Name)
		return true, fmt.Errorf("phase %s: %w", p.Name, err)
	}
	if err := r.markers.Record(p.Name); err != nil {
		return true, err
	}
	metrics.IncPhaseCompleted(p.Name)
	r.logger.Info("phase completed", "phase", p.Name)
	return true, nil
}

// RunAll runs phases strictly in order. A required phase failure aborts
// the sequence; an optional phase failure is logged and the sequence
// continues. Duplicate phase names are rejected up front.
func (r *Runner) RunAll(ctx context.Context, phases []Phase) error {
	seen := make(map[string]struct{}, len(phases))
	for _, p := range phases {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("duplicate phase name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, err := r.RunOnce(ctx, p)
		if err == nil {
			continue
		}
		if p.mode() == FailureModeIgnore {
			r.logger.Warn("optional phase failed, continuing", "phase", p.Name, "error", err)
			continue
		}
		return err
	}
	return nil
}
