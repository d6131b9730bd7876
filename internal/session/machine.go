package session

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/kinetic-data/formcoach/internal/config"
	"github.com/kinetic-data/formcoach/internal/feedback"
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/pose/criteria"
	"github.com/kinetic-data/formcoach/internal/pose/gate"
	"github.com/kinetic-data/formcoach/internal/pose/metrics"
	"github.com/kinetic-data/formcoach/internal/pose/smoother"
	"github.com/kinetic-data/formcoach/internal/ruleset"
)

// Positioning warning messages.
const (
	MsgStepBack    = "Step back from the camera"
	MsgMoveCloser  = "Move closer to the camera"
	MsgFullBody    = "Make sure your whole body is visible"
	MsgCatchUp     = "Follow the video"
	MsgInPosition  = "You're in position. Follow the video"
	MsgAllComplete = "Exercise complete. Great work"
)

// Machine drives one coaching session: it feeds each incoming frame through
// the smoothing, gating, metric and scoring stages, then applies the
// step-progression rules against the reference video's clock.
//
// Advance is a pure reducer over (State, frame, video snapshot, now): all
// externally visible actions come back as effects, and State is the only
// thing mutated between frames. The smoother's window is the machine's one
// private buffer; it is deterministic for a given push sequence and is reset
// together with the State.
type Machine struct {
	rules     *ruleset.Ruleset
	smoother  *smoother.Smoother
	gate      *gate.Gate
	extractor *metrics.Extractor
	evaluator *criteria.Evaluator
	selector  *feedback.Selector
	throttle  *feedback.Throttle

	confirmFramesRequired int
	stableFramesRequired  int
	gracePeriod           time.Duration
}

// NewMachine builds a Machine for one ruleset using centralized tuning.
func NewMachine(rules *ruleset.Ruleset, cfg *config.TuningConfig) *Machine {
	return &Machine{
		rules:     rules,
		smoother:  smoother.New(cfg.GetSmoothingWindow()),
		gate:      gate.New(cfg.GetVisibilityThreshold(), cfg.GetDistanceBuffer(), rules.IdealCameraDistance),
		extractor: metrics.NewExtractor(cfg.GetVisibilityThreshold()),
		evaluator: criteria.NewEvaluator(
			cfg.GetScoreBufferPercent(),
			cfg.GetScoreBufferPercentLenient(),
			cfg.GetPassingScoreFraction(),
			cfg.GetBackFlatPenaltyFactor(),
		),
		selector: feedback.NewSelector(
			cfg.GetFeedbackBufferPercent(),
			cfg.GetFeedbackBufferPercentLenient(),
		),
		throttle: feedback.NewThrottle(
			cfg.GetFeedbackCooldown(),
			cfg.GetVisibilityWarningCooldown(),
		),
		confirmFramesRequired: cfg.GetConfirmFramesRequired(),
		stableFramesRequired:  cfg.GetStableFramesRequired(),
		gracePeriod:           cfg.GetGracePeriod(),
	}
}

// Rules returns the machine's ruleset.
func (m *Machine) Rules() *ruleset.Ruleset { return m.rules }

// NewState creates a fresh session state in the positioning phase.
func (m *Machine) NewState() State {
	return State{
		SessionID: uuid.NewString(),
		Phase:     PhasePositioning,
	}
}

// Restart reinitializes all counters, the step index and the smoother, and
// asks the video to pause and rewind. The returned state carries a new
// session identity.
func (m *Machine) Restart(video VideoSnapshot) (State, []Effect) {
	m.smoother.Reset()
	st := m.NewState()
	effects := []Effect{}
	if video.Attached {
		effects = append(effects, PauseVideo{}, SeekVideo{Time: 0})
	}
	diagf("session restarted: %s", st.SessionID)
	return st, effects
}

// Advance processes one raw detector frame. It returns the successor state
// and the effects to execute. Mutations are fully applied before the next
// frame's callback begins; within a frame the order is fixed: smoother →
// gate → extractor → evaluator → progression → feedback → throttle.
func (m *Machine) Advance(st State, frame *pose.Frame, video VideoSnapshot, now time.Time) (State, []Effect) {
	st.FramesProcessed++

	gateRes := m.gate.Evaluate(frame)

	blocked := !gateRes.Visible || gateRes.Distance.Blocking()
	effects := []Effect{
		Render{Skeleton: pose.BuildSkeleton(frame, !blocked)},
	}

	if blocked {
		// Occluded frames carry garbage coordinates; keep them out of the
		// averaging window and refill it after the gate recovers.
		m.smoother.Reset()
		return m.advancePositioning(st, gateRes, video, now, effects)
	}

	smoothed, smootherReady := m.smoother.Push(frame)

	if !st.ExerciseStarted {
		return m.advanceConfirming(st, video, now, effects)
	}

	st.Phase = PhaseActive
	if st.Completed {
		// Terminal: the machine does not auto-reset. Keep rendering but
		// leave counters and video alone until an explicit restart.
		return st, effects
	}

	// Gate recovered from a positioning interruption: resume the video
	// unless it is paused for a back-flatness violation, which has its own
	// resume condition below.
	if video.Attached && video.Paused && !st.PausedForBackFlat {
		effects = append(effects, PlayVideo{})
	}

	if !smootherReady {
		// Smoothing window refilling (first frames of a run). Scoring waits.
		return st, effects
	}

	snap := m.extractor.Extract(smoothed)

	// Critical synchronization invariant: evaluate against the step the
	// demonstration is showing right now, not the user's last-confirmed one.
	videoStep := st.CurrentStepIndex
	if video.Attached {
		if i := m.rules.StepAt(video.CurrentTime); i >= 0 {
			videoStep = i
		}
	}
	step := &m.rules.Steps[videoStep]

	res := m.evaluator.Score(snap, step)
	tracef("frame %d: step %d score %d/%d passed=%v backflat=%v",
		st.FramesProcessed, videoStep, res.Score, res.MaxScore, res.Passed, res.BackFlatViolation)
	effects = append(effects, RecordScore{
		StepIndex: videoStep,
		Score:     res.Score,
		MaxScore:  res.MaxScore,
		Passed:    res.Passed,
	})

	// Back-flatness pauses the video immediately regardless of other
	// scoring, and resumes it automatically once flatness is restored.
	if res.BackFlatViolation {
		if video.Attached && !st.PausedForBackFlat {
			st.PausedForBackFlat = true
			effects = append(effects, PauseVideo{})
		}
	} else if st.PausedForBackFlat {
		st.PausedForBackFlat = false
		if video.Attached {
			effects = append(effects, PlayVideo{})
		}
	}

	inGrace := now.Sub(st.StartedAt) < m.gracePeriod

	// Catch-up: the video got ahead of the user's tracked step.
	if video.Attached && videoStep > st.CurrentStepIndex && !video.Paused {
		if res.Passed {
			diagf("catch-up: snapping step %d -> %d", st.CurrentStepIndex, videoStep)
			effects = append(effects, StepAdvanced{
				FromIndex: st.CurrentStepIndex,
				ToIndex:   videoStep,
				StepName:  step.StepName,
			})
			st.CurrentStepIndex = videoStep
			st.StableFrameCount = 0
		} else if !inGrace && m.throttle.AllowFeedback(st.LastFeedbackAt, now) {
			st.LastFeedbackAt = now
			effects = append(effects,
				ShowMessage{Text: MsgCatchUp, Kind: MessageCorrection},
				Speak{Text: MsgCatchUp},
			)
		}
		return st, effects
	}

	if !res.Passed {
		st.StableFrameCount = 0
		if !inGrace {
			if msg := m.selector.Select(&res, step); msg != "" && m.throttle.AllowFeedback(st.LastFeedbackAt, now) {
				st.LastFeedbackAt = now
				effects = append(effects,
					ShowMessage{Text: msg, Kind: MessageCorrection},
					Speak{Text: msg},
				)
			}
		}
		return st, effects
	}

	st.StableFrameCount++
	if st.StableFrameCount < m.stableFramesRequired {
		return st, effects
	}

	// Stability threshold reached on the tracked step.
	if st.CurrentStepIndex >= len(m.rules.Steps)-1 {
		st.Completed = true
		effects = append(effects,
			SessionCompleted{},
			ShowMessage{Text: MsgAllComplete, Kind: MessageTransition},
			Speak{Text: MsgAllComplete},
		)
		if video.Attached && !video.Paused {
			effects = append(effects, PauseVideo{})
		}
		diagf("session %s completed after %d frames", st.SessionID, st.FramesProcessed)
		return st, effects
	}

	nextStart, hasNext := m.rules.NextStartTime(st.CurrentStepIndex)
	boundaryReached := !video.Attached || !hasNext || video.CurrentTime >= nextStart
	if !boundaryReached {
		// Stable but early: the video has not reached the next step yet.
		if !inGrace && m.throttle.AllowFeedback(st.LastFeedbackAt, now) {
			st.LastFeedbackAt = now
			remaining := math.Ceil(nextStart - video.CurrentTime)
			msg := fmt.Sprintf("Hold this position for %.0f more seconds", remaining)
			effects = append(effects, ShowMessage{Text: msg, Kind: MessageProgress})
		}
		return st, effects
	}

	from := st.CurrentStepIndex
	st.CurrentStepIndex++
	st.StableFrameCount = 0
	next := &m.rules.Steps[st.CurrentStepIndex]
	diagf("step advance %d -> %d (%s)", from, st.CurrentStepIndex, next.StepName)
	effects = append(effects,
		StepAdvanced{FromIndex: from, ToIndex: st.CurrentStepIndex, StepName: next.StepName},
		ShowMessage{Text: "Next: " + next.StepName, Kind: MessageTransition},
		Speak{Text: "Next: " + next.StepName},
	)
	return st, effects
}

// advancePositioning handles frames where the gate is failing. Distance
// failure takes precedence in messaging; visibility failure additionally
// pauses the video when the exercise had already started.
func (m *Machine) advancePositioning(st State, gateRes gate.Result, video VideoSnapshot, now time.Time, effects []Effect) (State, []Effect) {
	st.Phase = PhasePositioning
	st.VisibilityConfirmFrames = 0
	st.StableFrameCount = 0

	if st.ExerciseStarted && !gateRes.Visible && video.Attached && !video.Paused {
		effects = append(effects, PauseVideo{})
	}

	if m.throttle.AllowPositioning(st.LastVisibilityWarningAt, now) {
		st.LastVisibilityWarningAt = now
		msg := MsgFullBody
		switch gateRes.Distance {
		case gate.DistanceTooClose:
			msg = MsgStepBack
		case gate.DistanceTooFar:
			msg = MsgMoveCloser
		}
		effects = append(effects,
			ShowMessage{Text: msg, Kind: MessagePositioning},
			Speak{Text: msg},
		)
	}
	return st, effects
}

// advanceConfirming handles gate-passing frames before the exercise has
// started: the confirmation counter debounces transient detections, and the
// exercise starts once it fills.
func (m *Machine) advanceConfirming(st State, video VideoSnapshot, now time.Time, effects []Effect) (State, []Effect) {
	st.Phase = PhaseConfirming
	st.VisibilityConfirmFrames++
	st.ReadyToStart = true

	if st.VisibilityConfirmFrames < m.confirmFramesRequired {
		progress := st.ConfirmProgress(m.confirmFramesRequired)
		effects = append(effects, ShowMessage{
			Text: fmt.Sprintf("Hold still… %d%%", int(progress*100)),
			Kind: MessageProgress,
		})
		return st, effects
	}

	st.ExerciseStarted = true
	st.Phase = PhaseActive
	st.StartedAt = now
	diagf("exercise started: session %s after %d confirm frames", st.SessionID, st.VisibilityConfirmFrames)
	effects = append(effects,
		ShowMessage{Text: MsgInPosition, Kind: MessageTransition},
		Speak{Text: MsgInPosition},
	)
	if video.Attached && video.Paused {
		effects = append(effects, PlayVideo{})
	}
	return st, effects
}
