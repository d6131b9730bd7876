// Package gate decides, per frame, whether the subject is well enough
// detected and positioned for scoring to mean anything. Everything
// downstream of the gate is skipped while it fails.
package gate

import (
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/ruleset"
)

// DistanceStatus classifies the subject's distance from the camera based on
// the average torso z coordinate.
type DistanceStatus string

const (
	DistanceTooClose DistanceStatus = "too_close"
	DistanceTooFar   DistanceStatus = "too_far"
	DistanceGood     DistanceStatus = "good"
	// DistanceUnknown is reported when the ruleset declares no ideal camera
	// distance. Unknown never blocks progression.
	DistanceUnknown DistanceStatus = "unknown"
)

// Blocking reports whether this distance status should block progression.
func (d DistanceStatus) Blocking() bool {
	return d == DistanceTooClose || d == DistanceTooFar
}

// requiredLandmarks are the indices that must be confidently detected for
// the frame to count as visible. Ankles are intentionally excluded: they
// drop below threshold routinely when the feet leave the bottom of the
// frame, and the knee criteria already anchor the lower body.
var requiredLandmarks = []int{
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftHip, pose.RightHip,
	pose.LeftKnee, pose.RightKnee,
}

// torsoLandmarks are averaged for the camera-distance estimate.
var torsoLandmarks = []int{
	pose.LeftShoulder, pose.RightShoulder,
	pose.LeftHip, pose.RightHip,
}

// Result is the gate's per-frame verdict.
type Result struct {
	Visible  bool           `json:"visible"`
	Distance DistanceStatus `json:"distance"`
	// Missing lists required landmark indices that failed the visibility
	// threshold this frame. Diagnostic only.
	Missing []int `json:"missing,omitempty"`
}

// Gate evaluates raw (unsmoothed) frames against the visibility threshold
// and the ruleset's ideal camera distance.
type Gate struct {
	visibilityThreshold float64
	distanceBuffer      float64
	ideal               *ruleset.CameraDistance
}

// New builds a Gate. ideal may be nil, in which case distance is always
// reported unknown.
func New(visibilityThreshold, distanceBuffer float64, ideal *ruleset.CameraDistance) *Gate {
	return &Gate{
		visibilityThreshold: visibilityThreshold,
		distanceBuffer:      distanceBuffer,
		ideal:               ideal,
	}
}

// Evaluate runs the gate on a raw frame. Visibility requires every required
// landmark at or above the threshold. Distance averages z over the torso
// landmarks and compares against the ideal range widened by the distance
// buffer on each side.
func (g *Gate) Evaluate(frame *pose.Frame) Result {
	res := Result{Visible: true, Distance: DistanceUnknown}

	for _, idx := range requiredLandmarks {
		if _, ok := frame.At(idx, g.visibilityThreshold); !ok {
			res.Visible = false
			res.Missing = append(res.Missing, idx)
		}
	}

	if g.ideal == nil {
		return res
	}

	var sum float64
	var n int
	for _, idx := range torsoLandmarks {
		if lm, ok := frame.At(idx, g.visibilityThreshold); ok {
			sum += lm.Z
			n++
		}
	}
	if n == 0 {
		// No torso landmark to measure against; distance stays unknown so a
		// fully occluded subject is reported as a visibility problem, not a
		// distance problem.
		return res
	}

	avgZ := sum / float64(n)
	switch {
	case avgZ < g.ideal.MinZ-g.distanceBuffer:
		res.Distance = DistanceTooClose
	case avgZ > g.ideal.MaxZ+g.distanceBuffer:
		res.Distance = DistanceTooFar
	default:
		res.Distance = DistanceGood
	}
	return res
}
