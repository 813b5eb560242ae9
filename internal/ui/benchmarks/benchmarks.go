// Package benchmarks provides timing estimates for the provisioning phases.
package benchmarks

import "time"

// DefaultTimings are typical phase durations on a fresh server (seconds).
var DefaultTimings = map[string]int{
	"validate":   10,
	"host":       240,
	"incus":      120,
	"network":    20,
	"containers": 180,
	"database":   120,
	"devenv":     420,
	"common":     90,
	"backups":    45,
}

// PhaseOrder defines the sequence of provisioning phases for ETA calculation.
var PhaseOrder = []string{
	"validate",
	"host",
	"incus",
	"network",
	"containers",
	"database",
	"devenv",
	"common",
	"backups",
}

// PhaseRecord is the observed run of one phase. EndedAt is zero while the
// phase is still running.
type PhaseRecord struct {
	Phase     string
	StartedAt time.Time
	EndedAt   time.Time
}

// Finished reports whether the phase has ended.
func (r PhaseRecord) Finished() bool {
	return !r.EndedAt.IsZero()
}

// EstimateRemaining calculates the estimated time remaining based on
// current phase, elapsed time, and historical phase records.
func EstimateRemaining(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) time.Duration {
	return EstimateRemainingWithScale(nil, currentPhase, phaseElapsed, history, PerformanceScale(currentPhase, phaseElapsed, history))
}

// EstimateRemainingWithScale calculates ETA over the phases of order (nil
// means PhaseOrder) while applying a performance scale factor.
func EstimateRemainingWithScale(
	order []string,
	currentPhase string,
	phaseElapsed time.Duration,
	history []PhaseRecord,
	scale float64,
) time.Duration {
	if order == nil {
		order = PhaseOrder
	}
	var remaining time.Duration

	currentIdx := -1
	for i, p := range order {
		if p == currentPhase {
			currentIdx = i
			break
		}
	}
	if currentIdx < 0 {
		return 0
	}

	// For the current phase: max(0, expected - elapsed)
	if expected, ok := DefaultTimings[currentPhase]; ok {
		expectedDur := time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		if expectedDur > phaseElapsed {
			remaining += expectedDur - phaseElapsed
		}
	}

	completed := make(map[string]bool)
	for _, rec := range history {
		if rec.Finished() {
			completed[rec.Phase] = true
		}
	}

	for _, phase := range order[currentIdx+1:] {
		if completed[phase] {
			continue
		}
		if expected, ok := DefaultTimings[phase]; ok {
			remaining += time.Duration(float64(time.Duration(expected)*time.Second) * scale)
		}
	}

	return remaining
}

// PerformanceScale derives a speed multiplier from observed-vs-expected durations.
// Example: expected 4m, observed 6m => scale=1.5 (future ETAs are stretched by 50%).
func PerformanceScale(currentPhase string, phaseElapsed time.Duration, history []PhaseRecord) float64 {
	var expectedTotal time.Duration
	var actualTotal time.Duration

	for _, rec := range history {
		expectedSecs, ok := DefaultTimings[rec.Phase]
		if !ok || !rec.Finished() {
			continue
		}
		expectedTotal += time.Duration(expectedSecs) * time.Second
		actualTotal += rec.EndedAt.Sub(rec.StartedAt)
	}

	// An overrunning current phase counts immediately so the ETA adapts quickly.
	if expectedSecs, ok := DefaultTimings[currentPhase]; ok && phaseElapsed > 0 {
		expectedCurrent := time.Duration(expectedSecs) * time.Second
		if phaseElapsed > expectedCurrent {
			expectedTotal += expectedCurrent
			actualTotal += phaseElapsed
		}
	}

	if expectedTotal == 0 || actualTotal == 0 {
		return 1.0
	}

	scale := float64(actualTotal) / float64(expectedTotal)
	if scale < 0.2 {
		return 0.2
	}
	if scale > 3.0 {
		return 3.0
	}
	return scale
}

// TotalEstimate returns the total estimated provisioning time.
func TotalEstimate() time.Duration {
	var total time.Duration
	for _, phase := range PhaseOrder {
		total += time.Duration(DefaultTimings[phase]) * time.Second
	}
	return total
}
