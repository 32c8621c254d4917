package health

import (
	"fmt"
	"time"
)

// TrendKind classifies the memory curve.
type TrendKind string

const (
	TrendInsufficientData TrendKind = "insufficient_data"
	TrendGrowing          TrendKind = "growing"
	TrendShrinking        TrendKind = "shrinking"
	TrendStable           TrendKind = "stable"
	TrendOOMPredicted     TrendKind = "oom_predicted"
)

// Trend is the projection result. ETAMinutes is set only for
// TrendOOMPredicted.
type Trend struct {
	Kind       TrendKind `json:"kind"`
	ETAMinutes int       `json:"eta_minutes,omitempty"`
	DeltaMB    float64   `json:"delta_mb"`
}

func (t Trend) String() string {
	if t.Kind == TrendOOMPredicted {
		return fmt.Sprintf("oom_predicted(%dm)", t.ETAMinutes)
	}
	return string(t.Kind)
}

// TrendConfig holds the projection thresholds. This is a crude linear
// extrapolation of the recent delta, meant as an early warning, not a
// forecast; do not read precision into the ETA.
type TrendConfig struct {
	MinSamples        int           // below this: insufficient_data
	WindowSamples     int           // how far back the comparison sample sits
	SampleInterval    time.Duration // nominal spacing between samples
	GrowthThresholdMB float64       // delta above this triggers ETA math
	StableBandMB      float64       // |delta| within this is stable
	KillThresholdMB   float64       // the watchdog's kill threshold
	PredictCapMinutes int           // ETAs beyond this are not reported
}

// Project compares the newest sample against the one WindowSamples
// back (or the oldest available) and classifies the delta.
func Project(s *Series, cfg TrendConfig) Trend {
	if s.Len() < cfg.MinSamples {
		return Trend{Kind: TrendInsufficientData}
	}
	recent, ok := s.Last()
	if !ok {
		return Trend{Kind: TrendInsufficientData}
	}
	earlier, intervals, ok := s.FromEnd(cfg.WindowSamples)
	if !ok || intervals == 0 {
		return Trend{Kind: TrendInsufficientData}
	}

	delta := recent.MemoryMB - earlier.MemoryMB
	if delta > cfg.GrowthThresholdMB {
		windowMinutes := float64(intervals) * cfg.SampleInterval.Minutes()
		if windowMinutes > 0 {
			rate := delta / windowMinutes // MB per minute
			remaining := cfg.KillThresholdMB - recent.MemoryMB
			eta := int(remaining / rate)
			if eta > 0 && eta < cfg.PredictCapMinutes {
				return Trend{Kind: TrendOOMPredicted, ETAMinutes: eta, DeltaMB: delta}
			}
		}
	}
	switch {
	case delta > cfg.StableBandMB:
		return Trend{Kind: TrendGrowing, DeltaMB: delta}
	case delta < -cfg.StableBandMB:
		return Trend{Kind: TrendShrinking, DeltaMB: delta}
	default:
		return Trend{Kind: TrendStable, DeltaMB: delta}
	}
}
