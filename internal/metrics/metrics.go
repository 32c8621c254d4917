package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	phasesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "bootstrap",
			Name:      "phases_completed_total",
			Help:      "Number of phases that ran to completion and recorded a marker.",
		}, []string{"phase"},
	)
	phasesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "bootstrap",
			Name:      "phases_skipped_total",
			Help:      "Number of phases skipped due to an existing marker.",
		}, []string{"phase"},
	)
	phaseFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "bootstrap",
			Name:      "phase_failures_total",
			Help:      "Number of phase actions that returned an error.",
		}, []string{"phase"},
	)
	watchdogWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "watchdog",
			Name:      "warnings_total",
			Help:      "Number of warn-threshold crossings observed.",
		},
	)
	watchdogTerminations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "watchdog",
			Name:      "terminations_total",
			Help:      "Number of termination signal rounds sent to the target (by signal).",
		}, []string{"signal"},
	)
	targetMemoryMB = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentbox",
			Subsystem: "watchdog",
			Name:      "target_memory_mb",
			Help:      "Most recently sampled aggregate RSS of the target process group in MB.",
		},
	)
	crashEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agentbox",
			Subsystem: "crash",
			Name:      "events_total",
			Help:      "Number of crash events appended to the crash log.",
		}, []string{"trigger"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "agentbox",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of live terminal sessions at last check.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		phasesCompleted, phasesSkipped, phaseFailures,
		watchdogWarnings, watchdogTerminations, targetMemoryMB,
		crashEvents, sessionsActive,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// DefaultGatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncPhaseCompleted(phase string) {
	if regOK.Load() {
		phasesCompleted.WithLabelValues(phase).Inc()
	}
}
func IncPhaseSkipped(phase string) {
	if regOK.Load() {
		phasesSkipped.WithLabelValues(phase).Inc()
	}
}
func IncPhaseFailure(phase string) {
	if regOK.Load() {
		phaseFailures.WithLabelValues(phase).Inc()
	}
}
func IncWatchdogWarning() {
	if regOK.Load() {
		watchdogWarnings.Inc()
	}
}
func IncWatchdogTermination(signal string) {
	if regOK.Load() {
		watchdogTerminations.WithLabelValues(signal).Inc()
	}
}
func SetTargetMemoryMB(mb float64) {
	if regOK.Load() {
		targetMemoryMB.Set(mb)
	}
}
func IncCrashEvent(trigger string) {
	if regOK.Load() {
		crashEvents.WithLabelValues(trigger).Inc()
	}
}
func SetActiveSessions(n int) {
	if regOK.Load() {
		sessionsActive.Set(float64(n))
	}
}
