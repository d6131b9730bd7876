// Package feedback converts a failing evaluation into the single correction
// the user should hear next, and rate-limits how often anything is said.
package feedback

import (
	"github.com/kinetic-data/formcoach/internal/pose/criteria"
	"github.com/kinetic-data/formcoach/internal/pose/metrics"
	"github.com/kinetic-data/formcoach/internal/ruleset"
)

// Correction messages. One per failure class; the selector returns at most
// one per frame.
const (
	MsgBackFlat       = "Keep your back flat on the mat"
	MsgKneeBent       = "Straighten your knees a little"
	MsgKneeStraight   = "Soften your knees a little"
	MsgLegsHigher     = "Lift your legs higher"
	MsgLegsLower      = "Lower your legs slightly"
	MsgHipAdjust      = "Adjust your hip position"
	MsgAnkleAdjust    = "Point your toes with the movement"
	MsgElbowAdjust    = "Check your arm position"
	MsgShoulderAdjust = "Relax your shoulders"
)

// Selector evaluates correction rules in fixed priority order and returns
// the first applicable message. Each directional check uses the feedback
// buffers, which are wider than the scoring buffers, so feedback fires less
// eagerly than pass/fail scoring and does not nag a passing-but-imperfect
// user.
type Selector struct {
	bufferPercent        float64
	bufferPercentLenient float64
}

// NewSelector builds a Selector from centralized tuning values.
func NewSelector(bufferPercent, bufferPercentLenient float64) *Selector {
	return &Selector{
		bufferPercent:        bufferPercent,
		bufferPercentLenient: bufferPercentLenient,
	}
}

// below/above report direction against the feedback-buffered range. A value
// inside the buffered range produces neither.
func buffered(c ruleset.Criterion, pct float64) (lo, hi float64) {
	buffer := (c.Max - c.Min) * pct
	return c.Min - buffer, c.Max + buffer
}

// Select returns the correction for a failing evaluation, or "" when no rule
// fires. Priority order: back flatness overrides everything, then knee
// angles, then heights, then hip, ankle, elbow and shoulder angles.
func (s *Selector) Select(res *criteria.Result, step *ruleset.Step) string {
	if res.BackFlatViolation {
		return MsgBackFlat
	}

	snap := &res.Metrics

	// Knee angles: bent (below range) vs locked (above range), with the
	// lenient buffer.
	for _, name := range []string{metrics.LeftKneeAngle, metrics.RightKneeAngle} {
		c, ok := step.Criteria[name]
		if !ok {
			continue
		}
		lo, hi := buffered(c, s.bufferPercentLenient)
		v := snap.Value(name)
		if v < lo {
			return MsgKneeBent
		}
		if v > hi {
			return MsgKneeStraight
		}
	}

	// Heights: y grows downward in image space, so a value above the
	// buffered max means the body part is too low in frame.
	for _, name := range []string{metrics.AnkleHeight, metrics.KneeHeight, metrics.HipHeight} {
		c, ok := step.Criteria[name]
		if !ok {
			continue
		}
		lo, hi := buffered(c, s.bufferPercent)
		v := snap.Value(name)
		if v > hi {
			return MsgLegsHigher
		}
		if v < lo {
			return MsgLegsLower
		}
	}

	type angleRule struct {
		names [2]string
		msg   string
	}
	for _, rule := range []angleRule{
		{[2]string{metrics.LeftHipAngle, metrics.RightHipAngle}, MsgHipAdjust},
		{[2]string{metrics.LeftAnkleAngle, metrics.RightAnkleAngle}, MsgAnkleAdjust},
		{[2]string{metrics.LeftElbowAngle, metrics.RightElbowAngle}, MsgElbowAdjust},
		{[2]string{metrics.LeftShoulderAngle, metrics.RightShoulderAngle}, MsgShoulderAdjust},
	} {
		for _, name := range rule.names {
			c, ok := step.Criteria[name]
			if !ok {
				continue
			}
			lo, hi := buffered(c, s.bufferPercent)
			v := snap.Value(name)
			if v < lo || v > hi {
				return rule.msg
			}
		}
	}

	return ""
}
