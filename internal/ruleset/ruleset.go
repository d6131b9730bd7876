// Package ruleset loads and validates the exercise rule set: the declarative
// description of what "correct" means at each point of the reference
// demonstration. A ruleset is loaded once per process lifetime and is
// immutable afterwards.
package ruleset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Criterion declares the acceptable numeric range for one named metric
// (a joint angle in degrees or a normalized height).
type Criterion struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BackFlatRule declares whether a step requires a flat back and how much
// deviation the heuristic may report before the step is penalized.
type BackFlatRule struct {
	ShouldBeFlat bool    `json:"should_be_flat"`
	MaxDeviation float64 `json:"max_deviation"`
}

// Step is one declared target body configuration, active over a specific
// time window of the reference demonstration video.
type Step struct {
	StepNumber int                  `json:"step_number"`
	StepName   string               `json:"step_name"`
	StartTime  float64              `json:"start_time"` // seconds into the reference video
	EndTime    float64              `json:"end_time"`
	Criteria   map[string]Criterion `json:"criteria"`
	BackFlat   *BackFlatRule        `json:"back_flat,omitempty"`
}

// RequiresFlatBack reports whether this step carries an active back-flat rule.
func (s *Step) RequiresFlatBack() bool {
	return s.BackFlat != nil && s.BackFlat.ShouldBeFlat
}

// CameraDistance bounds the acceptable average z of the torso landmarks.
type CameraDistance struct {
	MinZ float64 `json:"min_z"`
	MaxZ float64 `json:"max_z"`
}

// Ruleset is the single source of truth for an exercise: its name, the
// acceptable camera distance, and the ordered sequence of steps.
type Ruleset struct {
	ExerciseName        string          `json:"exercise_name"`
	IdealCameraDistance *CameraDistance `json:"ideal_camera_distance,omitempty"`
	Steps               []Step          `json:"steps"`
}

// Load reads and validates a ruleset from a JSON file.
func Load(path string) (*Ruleset, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("ruleset file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ruleset file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a ruleset from raw JSON. Steps are sorted by
// step_number before validation so uploads need not be pre-ordered.
func Parse(data []byte) (*Ruleset, error) {
	var rs Ruleset
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse ruleset JSON: %w", err)
	}

	sort.SliceStable(rs.Steps, func(i, j int) bool {
		return rs.Steps[i].StepNumber < rs.Steps[j].StepNumber
	})

	if err := rs.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ruleset: %w", err)
	}
	return &rs, nil
}

// Validate checks the ruleset invariants: at least one step, step numbers
// strictly increasing, time ranges well-formed, non-overlapping and
// non-decreasing, and camera distance bounds ordered.
func (r *Ruleset) Validate() error {
	if r.ExerciseName == "" {
		return fmt.Errorf("exercise_name is required")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("ruleset must declare at least one step")
	}
	if r.IdealCameraDistance != nil && r.IdealCameraDistance.MinZ > r.IdealCameraDistance.MaxZ {
		return fmt.Errorf("ideal_camera_distance: min_z %f > max_z %f",
			r.IdealCameraDistance.MinZ, r.IdealCameraDistance.MaxZ)
	}

	for i := range r.Steps {
		s := &r.Steps[i]
		if s.EndTime < s.StartTime {
			return fmt.Errorf("step %d: end_time %f before start_time %f", s.StepNumber, s.EndTime, s.StartTime)
		}
		for name, c := range s.Criteria {
			if c.Min > c.Max {
				return fmt.Errorf("step %d: criterion %q has min %f > max %f", s.StepNumber, name, c.Min, c.Max)
			}
		}
		if s.BackFlat != nil && s.BackFlat.MaxDeviation < 0 {
			return fmt.Errorf("step %d: back_flat max_deviation must be non-negative", s.StepNumber)
		}
		if i == 0 {
			continue
		}
		prev := &r.Steps[i-1]
		if s.StepNumber == prev.StepNumber {
			return fmt.Errorf("duplicate step_number %d", s.StepNumber)
		}
		if s.StartTime < prev.EndTime {
			return fmt.Errorf("step %d starts at %f before step %d ends at %f",
				s.StepNumber, s.StartTime, prev.StepNumber, prev.EndTime)
		}
	}
	return nil
}

// StepAt returns the index of the step whose [start_time, end_time) window
// contains videoTime, or -1 if no step is active at that time. This is how
// the state machine resolves which step the demonstration is currently
// showing.
func (r *Ruleset) StepAt(videoTime float64) int {
	for i := range r.Steps {
		if videoTime >= r.Steps[i].StartTime && videoTime < r.Steps[i].EndTime {
			return i
		}
	}
	// Past the final step's window: treat the last step as still current so
	// a user finishing slightly behind the video is scored against it.
	if n := len(r.Steps); n > 0 && videoTime >= r.Steps[n-1].EndTime {
		return n - 1
	}
	return -1
}

// NextStartTime returns the declared start_time of the step after index, and
// false when index is the final step.
func (r *Ruleset) NextStartTime(index int) (float64, bool) {
	if index < 0 || index+1 >= len(r.Steps) {
		return 0, false
	}
	return r.Steps[index+1].StartTime, true
}
