// Package criteria scores extracted metrics against the active step's
// declared acceptable ranges.
package criteria

import (
	"math"
	"sort"

	"github.com/kinetic-data/formcoach/internal/pose/metrics"
	"github.com/kinetic-data/formcoach/internal/ruleset"
)

// Result is the outcome of scoring one frame against one step.
type Result struct {
	// Score is the count of declared criteria the frame satisfied, after
	// any back-flat penalty. MaxScore is the count of declared criteria,
	// floored at 1 so the pass ratio is always defined.
	Score    int `json:"score"`
	MaxScore int `json:"max_score"`

	// Passed is true when Score cleared the passing fraction of MaxScore.
	Passed bool `json:"passed"`

	// BackFlatViolation is true when the step requires a flat back and the
	// frame's deviation exceeded the step's max_deviation.
	BackFlatViolation bool `json:"back_flat_violation"`

	// FailedMetrics lists declared metric names that fell outside their
	// buffered range, in deterministic (sorted) order. Feeds the feedback
	// selector and the session transcript.
	FailedMetrics []string `json:"failed_metrics,omitempty"`

	// Metrics is the snapshot that was scored.
	Metrics metrics.Snapshot `json:"metrics"`
}

// Evaluator scores metric snapshots. Buffers widen each criterion's range by
// a fraction of its span; knee metrics get the lenient fraction.
type Evaluator struct {
	bufferPercent        float64
	bufferPercentLenient float64
	passingFraction      float64
	backFlatPenalty      float64
}

// NewEvaluator builds an Evaluator from centralized tuning values.
func NewEvaluator(bufferPercent, bufferPercentLenient, passingFraction, backFlatPenalty float64) *Evaluator {
	return &Evaluator{
		bufferPercent:        bufferPercent,
		bufferPercentLenient: bufferPercentLenient,
		passingFraction:      passingFraction,
		backFlatPenalty:      backFlatPenalty,
	}
}

// InRange reports whether value lies within [min−buffer, max+buffer] where
// buffer = (max−min) × bufferPercent. Widening the buffer can only turn a
// failing value into a passing one.
func InRange(value float64, c ruleset.Criterion, bufferPercent float64) bool {
	buffer := (c.Max - c.Min) * bufferPercent
	return value >= c.Min-buffer && value <= c.Max+buffer
}

// Score evaluates a snapshot against a step. Every declared criterion counts
// toward MaxScore; a criterion the step does not declare is skipped entirely.
//
// Back-flatness is handled asymmetrically and at higher priority than the
// per-metric tally: a violation multiplies the accumulated score by the
// penalty factor (rounded down) instead of costing a single criterion, so a
// "good knees, sitting up" frame cannot pass on joint angles alone.
func (e *Evaluator) Score(snap metrics.Snapshot, step *ruleset.Step) Result {
	res := Result{Metrics: snap}

	names := make([]string, 0, len(step.Criteria))
	for name := range step.Criteria {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		c := step.Criteria[name]
		res.MaxScore++
		buffer := e.bufferPercent
		if metrics.IsKneeMetric(name) {
			buffer = e.bufferPercentLenient
		}
		if InRange(snap.Value(name), c, buffer) {
			res.Score++
		} else {
			res.FailedMetrics = append(res.FailedMetrics, name)
		}
	}

	if res.MaxScore < 1 {
		res.MaxScore = 1
	}

	if step.RequiresFlatBack() && snap.BackFlatDeviation > step.BackFlat.MaxDeviation {
		res.BackFlatViolation = true
		res.Score = int(math.Floor(float64(res.Score) * e.backFlatPenalty))
	}

	required := int(math.Ceil(e.passingFraction * float64(res.MaxScore)))
	res.Passed = res.Score >= required
	return res
}
