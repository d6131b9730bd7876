// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"

	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/ruleset"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// VisibleFrame returns a frame with every landmark fully visible at the
// given default position. Tests then overwrite the landmarks they care
// about.
func VisibleFrame(x, y, z float64) *pose.Frame {
	var f pose.Frame
	for i := range f.Landmarks {
		f.Landmarks[i] = pose.Landmark{X: x, Y: y, Z: z, Visibility: 1.0}
	}
	return &f
}

// LyingFrame returns a frame in a plausible lying-flat posture: torso
// horizontal near the bottom of the image, legs extended. Useful as a
// passing baseline for leg-raise style steps.
func LyingFrame() *pose.Frame {
	f := VisibleFrame(0.5, 0.8, 0.5)
	set := func(idx int, x, y float64) {
		f.Landmarks[idx].X = x
		f.Landmarks[idx].Y = y
	}
	set(pose.LeftShoulder, 0.30, 0.78)
	set(pose.RightShoulder, 0.30, 0.82)
	set(pose.LeftHip, 0.50, 0.78)
	set(pose.RightHip, 0.50, 0.82)
	set(pose.LeftKnee, 0.65, 0.78)
	set(pose.RightKnee, 0.65, 0.82)
	set(pose.LeftAnkle, 0.80, 0.78)
	set(pose.RightAnkle, 0.80, 0.82)
	set(pose.LeftFootIndex, 0.85, 0.78)
	set(pose.RightFootIndex, 0.85, 0.82)
	set(pose.LeftElbow, 0.32, 0.78)
	set(pose.RightElbow, 0.32, 0.82)
	set(pose.LeftWrist, 0.34, 0.78)
	set(pose.RightWrist, 0.34, 0.82)
	return f
}

// TwoStepRuleset returns a minimal valid ruleset with two steps covering
// [0, 10) and [10, 20) seconds and a single generous hip-angle criterion.
func TwoStepRuleset() *ruleset.Ruleset {
	return &ruleset.Ruleset{
		ExerciseName: "test-exercise",
		Steps: []ruleset.Step{
			{
				StepNumber: 1,
				StepName:   "Step one",
				StartTime:  0,
				EndTime:    10,
				Criteria: map[string]ruleset.Criterion{
					"left_hip_angle": {Min: 0, Max: 180},
				},
			},
			{
				StepNumber: 2,
				StepName:   "Step two",
				StartTime:  10,
				EndTime:    20,
				Criteria: map[string]ruleset.Criterion{
					"left_hip_angle": {Min: 0, Max: 180},
				},
			},
		},
	}
}
