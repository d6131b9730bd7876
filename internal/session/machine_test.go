package session

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/kinetic-data/formcoach/internal/config"
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/pose/metrics"
	"github.com/kinetic-data/formcoach/internal/ruleset"
	"github.com/kinetic-data/formcoach/internal/testutil"
)

// testConfig shrinks the debounce counters so tests need few frames, drops
// the smoothing window to passthrough and zeroes the grace period.
func testConfig() *config.TuningConfig {
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }
	return &config.TuningConfig{
		SmoothingWindow:       i(1),
		ConfirmFramesRequired: i(3),
		StableFramesRequired:  i(3),
		GracePeriod:           s("0s"),
	}
}

// testRules scores a single ankle-height criterion per step so tests can
// flip pass/fail by moving the ankles.
func testRules() *ruleset.Ruleset {
	return &ruleset.Ruleset{
		ExerciseName: "leg-raise",
		Steps: []ruleset.Step{
			{
				StepNumber: 1, StepName: "Lie flat", StartTime: 0, EndTime: 10,
				Criteria: map[string]ruleset.Criterion{metrics.AnkleHeight: {Min: 0.7, Max: 0.9}},
			},
			{
				StepNumber: 2, StepName: "Raise legs", StartTime: 10, EndTime: 20,
				Criteria: map[string]ruleset.Criterion{metrics.AnkleHeight: {Min: 0.1, Max: 0.4}},
			},
		},
	}
}

// passFrame satisfies step 1 (ankles low in frame, lying posture).
func passFrame() *pose.Frame {
	return testutil.LyingFrame()
}

// raisedFrame satisfies step 2 (ankles lifted).
func raisedFrame() *pose.Frame {
	f := testutil.LyingFrame()
	f.Landmarks[pose.LeftAnkle].Y = 0.3
	f.Landmarks[pose.RightAnkle].Y = 0.3
	return f
}

// occludedFrame fails the visibility gate.
func occludedFrame() *pose.Frame {
	f := testutil.LyingFrame()
	for i := range f.Landmarks {
		f.Landmarks[i].Visibility = 0.2
	}
	return f
}

func playingAt(seconds float64) VideoSnapshot {
	return VideoSnapshot{Attached: true, CurrentTime: seconds, Paused: false}
}

func pausedAt(seconds float64) VideoSnapshot {
	return VideoSnapshot{Attached: true, CurrentTime: seconds, Paused: true}
}

// startSession drives a machine through the confirmation phase and returns
// the active state. The clock ends at base.
func startSession(t *testing.T, m *Machine, base time.Time) State {
	t.Helper()
	st := m.NewState()
	for i := 0; i < 3; i++ {
		st, _ = m.Advance(st, passFrame(), pausedAt(0), base)
	}
	if !st.ExerciseStarted {
		t.Fatal("exercise did not start after the confirmation frames")
	}
	return st
}

func hasEffect[E Effect](effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(E); ok {
			return true
		}
	}
	return false
}

func messageTexts(effects []Effect) []string {
	var out []string
	for _, e := range effects {
		if msg, ok := e.(ShowMessage); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func TestNewStateStartsPositioning(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	st := m.NewState()
	if st.Phase != PhasePositioning {
		t.Errorf("new state phase = %q, want positioning", st.Phase)
	}
	if st.SessionID == "" {
		t.Error("new state should carry a session id")
	}
}

func TestConfirmationFlow(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	st := m.NewState()
	base := time.Unix(1000, 0)

	st, effects := m.Advance(st, passFrame(), pausedAt(0), base)
	if st.Phase != PhaseConfirming {
		t.Fatalf("phase after first good frame = %q, want confirming", st.Phase)
	}
	if st.ExerciseStarted {
		t.Fatal("exercise must not start on the first good frame")
	}
	if !hasEffect[Render](effects) {
		t.Error("every frame should carry a render effect")
	}
	if hasEffect[PlayVideo](effects) {
		t.Error("video must not start during confirmation")
	}

	st, _ = m.Advance(st, passFrame(), pausedAt(0), base)
	st, effects = m.Advance(st, passFrame(), pausedAt(0), base)
	if !st.ExerciseStarted || st.Phase != PhaseActive {
		t.Fatalf("exercise should start on confirm frame 3: %+v", st)
	}
	if st.StartedAt != base {
		t.Error("StartedAt should anchor at the starting frame's clock")
	}
	if !hasEffect[PlayVideo](effects) {
		t.Error("start should play the paused reference video")
	}
	if !hasEffect[Speak](effects) {
		t.Error("start should announce itself")
	}
}

func TestConfirmationResetByOcclusion(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	st := m.NewState()
	base := time.Unix(1000, 0)

	st, _ = m.Advance(st, passFrame(), pausedAt(0), base)
	st, _ = m.Advance(st, passFrame(), pausedAt(0), base)
	st, _ = m.Advance(st, occludedFrame(), pausedAt(0), base)
	if st.VisibilityConfirmFrames != 0 {
		t.Errorf("confirm counter = %d after occlusion, want reset to 0", st.VisibilityConfirmFrames)
	}
	if st.ExerciseStarted {
		t.Error("a transient detection must not start the exercise")
	}
}

func TestPositioningMessages(t *testing.T) {
	rules := testRules()
	rules.IdealCameraDistance = &ruleset.CameraDistance{MinZ: 0.4, MaxZ: 0.6}
	m := NewMachine(rules, testConfig())
	base := time.Unix(1000, 0)

	st := m.NewState()
	_, effects := m.Advance(st, occludedFrame(), pausedAt(0), base)
	if msgs := messageTexts(effects); len(msgs) != 1 || msgs[0] != MsgFullBody {
		t.Errorf("occluded frame messages = %v, want [%q]", msgs, MsgFullBody)
	}

	// Too close: every landmark at z=0.1, well under min_z. Distance takes
	// precedence over the visibility wording.
	tooClose := testutil.LyingFrame()
	for i := range tooClose.Landmarks {
		tooClose.Landmarks[i].Z = 0.1
	}
	st = m.NewState()
	_, effects = m.Advance(st, tooClose, pausedAt(0), base)
	if msgs := messageTexts(effects); len(msgs) != 1 || msgs[0] != MsgStepBack {
		t.Errorf("too-close frame messages = %v, want [%q]", msgs, MsgStepBack)
	}
}

func TestPositioningWarningThrottled(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)

	st := m.NewState()
	st, _ = m.Advance(st, occludedFrame(), pausedAt(0), base)
	_, effects := m.Advance(st, occludedFrame(), pausedAt(0), base.Add(time.Second))
	if len(messageTexts(effects)) != 0 {
		t.Error("second warning inside the cooldown should be suppressed")
	}
	_, effects = m.Advance(st, occludedFrame(), pausedAt(0), base.Add(16*time.Second))
	if len(messageTexts(effects)) != 1 {
		t.Error("warning past the cooldown should fire again")
	}
}

func TestOcclusionPausesVideoMidExercise(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	st, effects := m.Advance(st, occludedFrame(), playingAt(2), base.Add(time.Second))
	if !hasEffect[PauseVideo](effects) {
		t.Error("losing the subject mid-exercise should pause the video")
	}
	if st.Phase != PhasePositioning {
		t.Errorf("phase = %q, want positioning", st.Phase)
	}
	if st.CurrentStepIndex != 0 {
		t.Error("step index must survive a positioning interruption")
	}

	// Subject returns: the video resumes without a new confirmation round.
	st, effects = m.Advance(st, passFrame(), pausedAt(2), base.Add(2*time.Second))
	if !hasEffect[PlayVideo](effects) {
		t.Error("gate recovery should resume the paused video")
	}
	if !st.ExerciseStarted {
		t.Error("recovery must not restart the confirmation phase")
	}
}

func TestOcclusionKeptOutOfSmoothingWindow(t *testing.T) {
	cfg := testConfig()
	window := 2
	cfg.SmoothingWindow = &window
	m := NewMachine(testRules(), cfg)
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	// Occluded frames carry garbage coordinates along with the low
	// visibility scores.
	junk := occludedFrame()
	for i := range junk.Landmarks {
		junk.Landmarks[i].X = 5
		junk.Landmarks[i].Y = 5
	}
	st, _ = m.Advance(st, junk, playingAt(2), base.Add(time.Second))

	// First frame after recovery refills the window; scoring waits.
	st, effects := m.Advance(st, passFrame(), pausedAt(2), base.Add(2*time.Second))
	if hasEffect[RecordScore](effects) {
		t.Fatal("scoring should wait for the window to refill after occlusion")
	}

	// Second frame: the window holds only post-recovery frames, so the
	// lying posture passes cleanly.
	_, effects = m.Advance(st, passFrame(), pausedAt(2), base.Add(3*time.Second))
	for _, e := range effects {
		if rs, ok := e.(RecordScore); ok {
			if !rs.Passed {
				t.Errorf("RecordScore = %+v, occluded coordinates polluted the window", rs)
			}
			return
		}
	}
	t.Error("refilled window should score the frame")
}

func TestStableEarlyHoldsForVideo(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	// Three passing frames while the video is still inside step 1's window.
	var effects []Effect
	for i := 1; i <= 3; i++ {
		st, effects = m.Advance(st, passFrame(), playingAt(4), base.Add(time.Duration(i)*time.Second))
	}
	if st.CurrentStepIndex != 0 {
		t.Fatalf("step advanced to %d before the video reached the boundary", st.CurrentStepIndex)
	}
	if hasEffect[StepAdvanced](effects) {
		t.Fatal("no StepAdvanced effect expected before the boundary")
	}
	msgs := messageTexts(effects)
	if len(msgs) != 1 || msgs[0] != "Hold this position for 6 more seconds" {
		t.Errorf("hold message = %v", msgs)
	}
	// The counter keeps growing past the threshold while holding.
	st, _ = m.Advance(st, passFrame(), playingAt(5), base.Add(4*time.Second))
	if st.StableFrameCount != 4 {
		t.Errorf("StableFrameCount = %d, want 4", st.StableFrameCount)
	}
}

func TestAdvanceWhenVideoCrossesBoundary(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	for i := 1; i <= 3; i++ {
		st, _ = m.Advance(st, passFrame(), playingAt(4), base.Add(time.Duration(i)*time.Second))
	}

	// The video crosses into step 2 while the user holds the raised pose.
	st, effects := m.Advance(st, raisedFrame(), playingAt(10.5), base.Add(5*time.Second))
	if st.CurrentStepIndex != 1 {
		t.Fatalf("step index = %d, want 1 after the video crossed the boundary", st.CurrentStepIndex)
	}
	if !hasEffect[StepAdvanced](effects) {
		t.Error("expected a StepAdvanced effect")
	}
	if st.StableFrameCount != 0 {
		t.Errorf("StableFrameCount = %d, want reset on advance", st.StableFrameCount)
	}
}

func TestCatchUpPromptWhenBehind(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	// Video shows step 2 but the user still lies flat, failing step 2's
	// criterion. The machine asks them to follow the video.
	st, effects := m.Advance(st, passFrame(), playingAt(12), base.Add(time.Second))
	if st.CurrentStepIndex != 0 {
		t.Fatalf("step index = %d, failing frames must not advance it", st.CurrentStepIndex)
	}
	msgs := messageTexts(effects)
	if len(msgs) != 1 || msgs[0] != MsgCatchUp {
		t.Errorf("messages = %v, want [%q]", msgs, MsgCatchUp)
	}

	// Once the user matches the demonstrated step, the index snaps forward.
	st, effects = m.Advance(st, raisedFrame(), playingAt(12), base.Add(2*time.Second))
	if st.CurrentStepIndex != 1 {
		t.Fatalf("step index = %d, want snap to 1 on a passing frame", st.CurrentStepIndex)
	}
	if !hasEffect[StepAdvanced](effects) {
		t.Error("catch-up snap should emit StepAdvanced")
	}
}

func TestStepIndexNeverDecreases(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)
	st.CurrentStepIndex = 1

	// The video rewinds to step 1's window; the index must hold.
	st, _ = m.Advance(st, raisedFrame(), playingAt(3), base.Add(time.Second))
	if st.CurrentStepIndex != 1 {
		t.Errorf("step index = %d, a rewinding video must not regress it", st.CurrentStepIndex)
	}
}

func TestCompletion(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)
	st.CurrentStepIndex = 1 // already on the final step

	var effects []Effect
	for i := 1; i <= 3; i++ {
		st, effects = m.Advance(st, raisedFrame(), playingAt(18), base.Add(time.Duration(i)*time.Second))
	}
	if !st.Completed {
		t.Fatal("session should complete after the stability threshold on the final step")
	}
	if !hasEffect[SessionCompleted](effects) {
		t.Error("expected SessionCompleted effect")
	}
	if !hasEffect[PauseVideo](effects) {
		t.Error("completion should pause the playing video")
	}
	msgs := messageTexts(effects)
	if len(msgs) != 1 || msgs[0] != MsgAllComplete {
		t.Errorf("messages = %v, want [%q]", msgs, MsgAllComplete)
	}

	// Terminal: further frames only render.
	st2, effects := m.Advance(st, raisedFrame(), playingAt(19), base.Add(10*time.Second))
	if len(effects) != 1 || !hasEffect[Render](effects) {
		t.Errorf("completed session emitted %d effects, want render only", len(effects))
	}
	if st2.Completed != true || st2.CurrentStepIndex != st.CurrentStepIndex {
		t.Error("completed state should be stable")
	}
}

func TestGracePeriodSuppressesCorrections(t *testing.T) {
	cfg := testConfig()
	grace := "10s"
	cfg.GracePeriod = &grace
	m := NewMachine(testRules(), cfg)
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	// Failing frame inside the grace period: scored, but silent.
	st, effects := m.Advance(st, raisedFrame(), playingAt(2), base.Add(2*time.Second))
	if !hasEffect[RecordScore](effects) {
		t.Error("grace frames are still scored")
	}
	if len(messageTexts(effects)) != 0 {
		t.Error("corrections must stay quiet during the grace period")
	}

	// Past the grace period the correction fires.
	_, effects = m.Advance(st, raisedFrame(), playingAt(3), base.Add(11*time.Second))
	if len(messageTexts(effects)) == 0 {
		t.Error("correction should fire after the grace period")
	}
}

func TestFeedbackCooldown(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	st, effects := m.Advance(st, raisedFrame(), playingAt(2), base.Add(time.Second))
	if len(messageTexts(effects)) != 1 {
		t.Fatal("first failing frame should produce a correction")
	}
	st, effects = m.Advance(st, raisedFrame(), playingAt(2), base.Add(2*time.Second))
	if len(messageTexts(effects)) != 0 {
		t.Error("correction inside the cooldown should be suppressed")
	}
	_, effects = m.Advance(st, raisedFrame(), playingAt(2), base.Add(5*time.Second))
	if len(messageTexts(effects)) != 1 {
		t.Error("correction past the cooldown should fire")
	}
}

func TestBackFlatPausesAndResumes(t *testing.T) {
	rules := testRules()
	rules.Steps[0].BackFlat = &ruleset.BackFlatRule{ShouldBeFlat: true, MaxDeviation: 0.1}
	m := NewMachine(rules, testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	sitting := testutil.LyingFrame()
	sitting.Landmarks[pose.LeftShoulder].Y = 0.48
	sitting.Landmarks[pose.RightShoulder].Y = 0.52

	st, effects := m.Advance(st, sitting, playingAt(2), base.Add(time.Second))
	if !st.PausedForBackFlat {
		t.Fatal("back-flat violation should mark the pause")
	}
	if !hasEffect[PauseVideo](effects) {
		t.Error("back-flat violation should pause the video")
	}

	// Still violating: no second pause command.
	st, effects = m.Advance(st, sitting, pausedAt(2), base.Add(2*time.Second))
	if hasEffect[PauseVideo](effects) {
		t.Error("pause should only be issued once per violation")
	}

	// Flat again: resume.
	st, effects = m.Advance(st, passFrame(), pausedAt(2), base.Add(3*time.Second))
	if st.PausedForBackFlat {
		t.Error("flag should clear once flatness is restored")
	}
	if !hasEffect[PlayVideo](effects) {
		t.Error("restoring flatness should resume the video")
	}
}

func TestRestart(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)
	oldID := st.SessionID

	st, effects := m.Restart(playingAt(12))
	if st.SessionID == oldID {
		t.Error("restart should mint a new session id")
	}
	if st.ExerciseStarted || st.CurrentStepIndex != 0 || st.Phase != PhasePositioning {
		t.Errorf("restart state not fresh: %+v", st)
	}
	if !hasEffect[PauseVideo](effects) {
		t.Error("restart should pause the video")
	}
	seeked := false
	for _, e := range effects {
		if s, ok := e.(SeekVideo); ok && s.Time == 0 {
			seeked = true
		}
	}
	if !seeked {
		t.Error("restart should rewind the video to zero")
	}
}

func TestAdvanceDeterministic(t *testing.T) {
	// Two machines fed the identical frame sequence must land on identical
	// states, modulo the random session id.
	run := func() State {
		m := NewMachine(testRules(), testConfig())
		st := m.NewState()
		base := time.Unix(1000, 0)
		inputs := []struct {
			frame *pose.Frame
			video VideoSnapshot
		}{
			{passFrame(), pausedAt(0)},
			{passFrame(), pausedAt(0)},
			{occludedFrame(), pausedAt(0)},
			{passFrame(), pausedAt(0)},
			{passFrame(), pausedAt(0)},
			{passFrame(), pausedAt(0)},
			{passFrame(), playingAt(2)},
			{raisedFrame(), playingAt(3)},
			{passFrame(), playingAt(11)},
			{raisedFrame(), playingAt(12)},
		}
		for i, in := range inputs {
			st, _ = m.Advance(st, in.frame, in.video, base.Add(time.Duration(i)*time.Second))
		}
		return st
	}

	a, b := run(), run()
	if diff := cmp.Diff(a, b, cmpopts.IgnoreFields(State{}, "SessionID")); diff != "" {
		t.Errorf("states diverged (-first +second):\n%s", diff)
	}
}

func TestRecordScoreEveryActiveFrame(t *testing.T) {
	m := NewMachine(testRules(), testConfig())
	base := time.Unix(1000, 0)
	st := startSession(t, m, base)

	_, effects := m.Advance(st, passFrame(), playingAt(2), base.Add(time.Second))
	for _, e := range effects {
		if rs, ok := e.(RecordScore); ok {
			if rs.MaxScore != 1 || !rs.Passed {
				t.Errorf("RecordScore = %+v, want passing 1/1", rs)
			}
			return
		}
	}
	t.Error("active frame should emit a RecordScore effect")
}
