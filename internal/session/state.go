// Package session owns the step-progression state machine: the only mutable
// state in the pipeline, advanced once per incoming pose frame, reconciling
// the continuous user-pose stream with the externally playing reference
// video's timeline.
package session

import "time"

// Phase is the visibility-session lifecycle layered over the step index.
type Phase string

const (
	// PhasePositioning: the visibility or distance gate is failing. Warnings
	// are emitted on a long cooldown; if the exercise had started, the
	// reference video is paused. The step index is not reset.
	PhasePositioning Phase = "positioning"
	// PhaseConfirming: the gate passes but a confirmation counter must fill
	// before the exercise is declared started. Debounces transient
	// false-positive detections.
	PhaseConfirming Phase = "confirming"
	// PhaseActive: exercise running; frames are scored against the step the
	// reference video is currently showing.
	PhaseActive Phase = "active"
)

// State is the single-owner session state. It is created at session start,
// mutated exclusively by the Machine in response to each processed frame,
// and reset on explicit restart. All fields are value types so the reducer
// can copy the whole struct cheaply.
type State struct {
	SessionID string `json:"session_id"`
	Phase     Phase  `json:"phase"`

	// CurrentStepIndex only increases within a run (monotonic); reset only
	// by explicit restart.
	CurrentStepIndex int `json:"current_step_index"`

	// StableFrameCount counts consecutive passing frames toward advancement.
	StableFrameCount int `json:"stable_frame_count"`

	// VisibilityConfirmFrames counts consecutive good-gate frames toward
	// exercise start.
	VisibilityConfirmFrames int `json:"visibility_confirm_frames"`

	ExerciseStarted bool `json:"exercise_started"`
	ReadyToStart    bool `json:"ready_to_start"`
	Completed       bool `json:"completed"`

	// StartedAt anchors the post-start grace period during which scoring
	// feedback is suppressed.
	StartedAt time.Time `json:"started_at,omitzero"`

	// PausedForBackFlat records that the machine paused the video because of
	// a back-flatness violation, so it knows to resume when flatness is
	// restored (and only then).
	PausedForBackFlat bool `json:"paused_for_back_flat"`

	// Notification throttle timestamps (wall clock, frame-rate independent).
	LastFeedbackAt          time.Time `json:"last_feedback_at,omitzero"`
	LastVisibilityWarningAt time.Time `json:"last_visibility_warning_at,omitzero"`

	// FramesProcessed counts frames that reached the reducer this run.
	FramesProcessed int `json:"frames_processed"`
}

// ConfirmProgress reports fractional progress through the confirmation
// counter for UI feedback, in [0, 1].
func (s *State) ConfirmProgress(required int) float64 {
	if required <= 0 {
		return 1
	}
	p := float64(s.VisibilityConfirmFrames) / float64(required)
	if p > 1 {
		p = 1
	}
	return p
}

// VideoSnapshot is the reference video's state as read at frame-callback
// entry. The machine never assumes it can synchronously rewind or
// fast-forward the video; it only issues play/pause effects and tolerates
// the acknowledgment arriving on a later callback.
type VideoSnapshot struct {
	// Attached is false when no reference video was resolved. The machine
	// then runs self-paced: advancement is driven purely by the stability
	// counter and the catch-up branch can never trigger.
	Attached    bool    `json:"attached"`
	CurrentTime float64 `json:"current_time"` // seconds
	Paused      bool    `json:"paused"`
}
