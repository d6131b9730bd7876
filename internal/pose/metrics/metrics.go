// Package metrics converts a smoothed pose frame into the named
// biomechanical scalars the criteria evaluator scores: bilateral joint
// angles, landmark heights and a back-flatness deviation.
package metrics

import (
	"math"

	"github.com/kinetic-data/formcoach/internal/pose"
)

// Metric names. These are the keys a ruleset's criteria map may declare.
const (
	LeftHipAngle       = "left_hip_angle"
	RightHipAngle      = "right_hip_angle"
	LeftKneeAngle      = "left_knee_angle"
	RightKneeAngle     = "right_knee_angle"
	LeftAnkleAngle     = "left_ankle_angle"
	RightAnkleAngle    = "right_ankle_angle"
	LeftElbowAngle     = "left_elbow_angle"
	RightElbowAngle    = "right_elbow_angle"
	LeftShoulderAngle  = "left_shoulder_angle"
	RightShoulderAngle = "right_shoulder_angle"

	AnkleHeight    = "ankle_height"
	KneeHeight     = "knee_height"
	HipHeight      = "hip_height"
	ShoulderHeight = "shoulder_height"
)

// Snapshot is the extracted scalar bundle for one frame. It is recomputed
// every frame and never persisted beyond the current evaluation. Heights are
// raw normalized-image y coordinates, so larger means lower in the image.
type Snapshot struct {
	Values            map[string]float64 `json:"values"`
	BackFlatDeviation float64            `json:"back_flat_deviation"`
}

// Value returns the named metric, or 0 when the frame could not produce it.
func (s *Snapshot) Value(name string) float64 {
	return s.Values[name]
}

// Extractor derives a Snapshot from a frame. It is a pure function of the
// frame; missing landmarks degrade the affected metric to 0 rather than
// failing the whole frame.
type Extractor struct {
	visibilityThreshold float64
}

// NewExtractor builds an Extractor using the given visibility threshold for
// deciding whether a landmark participates in a metric.
func NewExtractor(visibilityThreshold float64) *Extractor {
	return &Extractor{visibilityThreshold: visibilityThreshold}
}

// Angle computes the interior angle in degrees at vertex b formed by the
// rays b→a and b→c, via the absolute difference of atan2 bearings. The
// result is reflected into [0, 180]. Angle(a, b, c) == Angle(c, b, a).
func Angle(a, b, c pose.Landmark) float64 {
	rad := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	deg := math.Abs(rad * 180 / math.Pi)
	if deg > 180 {
		deg = 360 - deg
	}
	return deg
}

// jointAngle computes Angle(a, b, c) if all three landmarks clear the
// visibility threshold, else 0.
func (e *Extractor) jointAngle(f *pose.Frame, a, b, c int) float64 {
	la, oka := f.At(a, e.visibilityThreshold)
	lb, okb := f.At(b, e.visibilityThreshold)
	lc, okc := f.At(c, e.visibilityThreshold)
	if !oka || !okb || !okc {
		return 0
	}
	return Angle(la, lb, lc)
}

// pairHeight returns the y coordinate averaged across both sides when both
// are present, whichever side is present otherwise, and 0 when neither is.
func (e *Extractor) pairHeight(f *pose.Frame, left, right int) float64 {
	ll, okl := f.At(left, e.visibilityThreshold)
	lr, okr := f.At(right, e.visibilityThreshold)
	switch {
	case okl && okr:
		return (ll.Y + lr.Y) / 2
	case okl:
		return ll.Y
	case okr:
		return lr.Y
	default:
		return 0
	}
}

// Extract computes the full snapshot for a frame.
func (e *Extractor) Extract(f *pose.Frame) Snapshot {
	v := map[string]float64{
		LeftHipAngle:   e.jointAngle(f, pose.LeftShoulder, pose.LeftHip, pose.LeftKnee),
		RightHipAngle:  e.jointAngle(f, pose.RightShoulder, pose.RightHip, pose.RightKnee),
		LeftKneeAngle:  e.jointAngle(f, pose.LeftHip, pose.LeftKnee, pose.LeftAnkle),
		RightKneeAngle: e.jointAngle(f, pose.RightHip, pose.RightKnee, pose.RightAnkle),
		// Ankle angle uses the foot index as the distal ray.
		LeftAnkleAngle:  e.jointAngle(f, pose.LeftKnee, pose.LeftAnkle, pose.LeftFootIndex),
		RightAnkleAngle: e.jointAngle(f, pose.RightKnee, pose.RightAnkle, pose.RightFootIndex),
		LeftElbowAngle:  e.jointAngle(f, pose.LeftShoulder, pose.LeftElbow, pose.LeftWrist),
		RightElbowAngle: e.jointAngle(f, pose.RightShoulder, pose.RightElbow, pose.RightWrist),
		// Shoulder angle: elbow–shoulder–hip opening.
		LeftShoulderAngle:  e.jointAngle(f, pose.LeftElbow, pose.LeftShoulder, pose.LeftHip),
		RightShoulderAngle: e.jointAngle(f, pose.RightElbow, pose.RightShoulder, pose.RightHip),

		AnkleHeight:    e.pairHeight(f, pose.LeftAnkle, pose.RightAnkle),
		KneeHeight:     e.pairHeight(f, pose.LeftKnee, pose.RightKnee),
		HipHeight:      e.pairHeight(f, pose.LeftHip, pose.RightHip),
		ShoulderHeight: e.pairHeight(f, pose.LeftShoulder, pose.RightShoulder),
	}

	return Snapshot{
		Values:            v,
		BackFlatDeviation: e.backFlatDeviation(f),
	}
}

// backFlatDeviation is a heuristic scalar, not a literal angle. It combines
// shoulder/hip vertical separation (with an extra penalty when shoulders sit
// above hips, i.e. the subject is sitting up rather than lying flat) and
// left/right tilt asymmetry. Lower is flatter. Returns 1.0 (maximally not
// flat) when the torso landmarks are missing.
func (e *Extractor) backFlatDeviation(f *pose.Frame) float64 {
	ls, ok1 := f.At(pose.LeftShoulder, e.visibilityThreshold)
	rs, ok2 := f.At(pose.RightShoulder, e.visibilityThreshold)
	lh, ok3 := f.At(pose.LeftHip, e.visibilityThreshold)
	rh, ok4 := f.At(pose.RightHip, e.visibilityThreshold)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return 1.0
	}

	avgShoulderY := (ls.Y + rs.Y) / 2
	avgHipY := (lh.Y + rh.Y) / 2

	verticalDeviation := math.Abs(avgShoulderY - avgHipY)

	// Image y grows downward: shoulders above hips means avgShoulderY <
	// avgHipY, which is the sitting-up posture the rule exists to catch.
	var sittingPenalty float64
	if avgShoulderY < avgHipY {
		sittingPenalty = 2 * (avgHipY - avgShoulderY)
	}

	shoulderTilt := math.Abs(ls.Y - rs.Y)
	hipTilt := math.Abs(lh.Y - rh.Y)

	deviation := verticalDeviation + sittingPenalty
	deviation = math.Max(deviation, 0.5*shoulderTilt)
	deviation = math.Max(deviation, 0.5*hipTilt)
	return deviation
}

// IsKneeMetric reports whether the named metric measures knee flexion.
// Knee metrics get the lenient buffers because knee angle is the least
// reliably measured joint under typical camera placements.
func IsKneeMetric(name string) bool {
	return name == LeftKneeAngle || name == RightKneeAngle
}
