package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kinetic-data/formcoach/internal/media"
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/ruleset"
	"github.com/kinetic-data/formcoach/internal/storage/sqlite"
	"github.com/kinetic-data/formcoach/internal/timeutil"
)

// Runner binds the pure Machine to the outside world: it receives detector
// frame pushes, executes the effects the reducer returns (video commands,
// speech, persistence, render payloads) and owns teardown. The reducer runs
// to completion inside each push; state mutations are fully applied
// before the next frame's callback begins.
type Runner struct {
	clock timeutil.Clock

	video   media.VideoController // nil when no reference video resolved
	speaker *media.DuckingSpeaker // nil when speech disabled
	store   *sqlite.Store         // nil when persistence disabled

	// epoch guards against late-arriving asynchronous completions mutating
	// state after teardown or restart: every async callback captures the
	// epoch at issue time and is a no-op if it no longer matches.
	epoch  atomic.Int64
	closed atomic.Bool

	// MaxFrameRate throttle. Frames arriving faster than the configured
	// rate are dropped before the reducer; the detector stream is
	// push-driven and bursty pushes should not distort the stability
	// counters.
	minFrameInterval time.Duration
	throttledFrames  atomic.Uint64

	mu            sync.Mutex
	machine       *Machine // swapped on RestartWith
	state         State
	lastProcessed time.Time
	sessionOpen   bool
	lastSkeleton  pose.Skeleton
	lastMessage   ShowMessage
}

// RunnerConfig holds the Runner's collaborators. Any of Video, Speaker and
// Store may be nil; the corresponding effects become no-ops.
type RunnerConfig struct {
	Machine *Machine
	Clock   timeutil.Clock
	Video   media.VideoController
	Speaker *media.DuckingSpeaker
	Store   *sqlite.Store

	// MaxFrameRate caps reducer invocations per second. Zero processes
	// every frame.
	MaxFrameRate float64
}

// NewRunner builds a Runner with a fresh session state.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		machine: cfg.Machine,
		clock:   cfg.Clock,
		video:   cfg.Video,
		speaker: cfg.Speaker,
		store:   cfg.Store,
	}
	if r.clock == nil {
		r.clock = timeutil.RealClock{}
	}
	if cfg.MaxFrameRate > 0 {
		r.minFrameInterval = time.Duration(float64(time.Second) / cfg.MaxFrameRate)
	}
	r.state = cfg.Machine.NewState()
	return r
}

// OnFrame is the detector push entry point. It runs the whole pipeline for
// one frame and executes the resulting effects. Safe for concurrent callers:
// the ingestion endpoint serves each push on its own goroutine, so the
// throttle state and the reducer run under the state mutex. A closed runner
// ignores frames.
func (r *Runner) OnFrame(frame *pose.Frame) {
	if r.closed.Load() {
		return
	}

	now := r.clock.Now()
	video := r.videoSnapshot()

	r.mu.Lock()
	if r.minFrameInterval > 0 {
		if !r.lastProcessed.IsZero() && now.Sub(r.lastProcessed) < r.minFrameInterval {
			r.mu.Unlock()
			count := r.throttledFrames.Add(1)
			if count%100 == 0 {
				diagf("throttled %d frames (max %.0f fps)", count, float64(time.Second)/float64(r.minFrameInterval))
			}
			return
		}
		r.lastProcessed = now
	}
	prev := r.state
	next, effects := r.machine.Advance(prev, frame, video, now)
	r.state = next
	r.mu.Unlock()

	if !prev.ExerciseStarted && next.ExerciseStarted {
		r.openSession(next, now)
	}

	epoch := r.epoch.Load()
	for _, effect := range effects {
		r.execute(effect, next, now, epoch)
	}
}

// Restart reinitializes the session: cancels speech, rewinds the video and
// swaps in a fresh state. The epoch bump makes any in-flight async
// completion from the previous run a no-op.
func (r *Runner) Restart() {
	r.restart(nil)
}

// RestartWith restarts the session on a rebuilt machine. This is how tuning
// updates posted through the API take effect: the restart handler rebuilds
// the machine from the stored config and swaps it in here.
func (r *Runner) RestartWith(m *Machine) {
	r.restart(m)
}

func (r *Runner) restart(m *Machine) {
	r.epoch.Add(1)
	if r.speaker != nil {
		r.speaker.Cancel()
	}

	video := r.videoSnapshot()

	r.mu.Lock()
	if m != nil {
		r.machine = m
	}
	prev := r.state
	open := r.sessionOpen
	next, effects := r.machine.Restart(video)
	r.state = next
	r.sessionOpen = false
	r.lastMessage = ShowMessage{}
	r.mu.Unlock()

	if open {
		r.closeSession(prev, false)
	}

	epoch := r.epoch.Load()
	for _, effect := range effects {
		r.execute(effect, next, r.clock.Now(), epoch)
	}
}

// Teardown halts the session permanently: speech is cancelled and the video
// paused synchronously, the open session record is closed, and any late
// async completion is fenced off by the epoch bump.
func (r *Runner) Teardown() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	r.epoch.Add(1)
	if r.speaker != nil {
		r.speaker.Cancel()
	}
	if r.video != nil {
		if err := r.video.Pause(); err != nil {
			opsf("pause on teardown failed: %v", err)
		}
	}

	r.mu.Lock()
	st := r.state
	open := r.sessionOpen
	r.sessionOpen = false
	r.mu.Unlock()

	if open {
		r.closeSession(st, st.Completed)
	}
}

// Rules returns the active machine's ruleset.
func (r *Runner) Rules() *ruleset.Ruleset {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Rules()
}

// Snapshot returns the current state together with the latest render payload
// and feedback line, for the API.
func (r *Runner) Snapshot() (State, pose.Skeleton, ShowMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.lastSkeleton, r.lastMessage
}

func (r *Runner) videoSnapshot() VideoSnapshot {
	if r.video == nil {
		return VideoSnapshot{}
	}
	return VideoSnapshot{
		Attached:    true,
		CurrentTime: r.video.CurrentTime(),
		Paused:      r.video.Paused(),
	}
}

// execute performs one effect. Command failures are logged and otherwise
// ignored; nothing here may abort the frame.
func (r *Runner) execute(effect Effect, st State, now time.Time, epoch int64) {
	if epoch != r.epoch.Load() {
		return
	}
	switch e := effect.(type) {
	case Render:
		r.mu.Lock()
		r.lastSkeleton = e.Skeleton
		r.mu.Unlock()

	case ShowMessage:
		r.mu.Lock()
		r.lastMessage = e
		r.mu.Unlock()
		diagf("message [%s]: %s", e.Kind, e.Text)

	case Speak:
		if r.speaker != nil {
			if err := r.speaker.Say(e.Text); err != nil {
				opsf("speak failed: %v", err)
			}
		}

	case PlayVideo:
		if r.video != nil {
			if err := r.video.Play(); err != nil {
				opsf("play rejected: %v", err)
			}
		}

	case PauseVideo:
		if r.video != nil {
			if err := r.video.Pause(); err != nil {
				opsf("pause rejected: %v", err)
			}
		}

	case SeekVideo:
		if r.video != nil {
			if err := r.video.Seek(e.Time); err != nil {
				opsf("seek rejected: %v", err)
			}
		}

	case RecordScore:
		if r.store != nil {
			err := r.store.InsertFrameScore(&sqlite.FrameScore{
				SessionID:   st.SessionID,
				TSUnixNanos: now.UnixNano(),
				StepIndex:   e.StepIndex,
				Score:       e.Score,
				MaxScore:    e.MaxScore,
				Passed:      e.Passed,
			})
			if err != nil {
				opsf("record score failed: %v", err)
			}
		}

	case StepAdvanced:
		if r.store != nil {
			err := r.store.InsertStepEvent(&sqlite.StepEvent{
				SessionID:   st.SessionID,
				TSUnixNanos: now.UnixNano(),
				FromIndex:   e.FromIndex,
				ToIndex:     e.ToIndex,
				StepName:    e.StepName,
			})
			if err != nil {
				opsf("record step event failed: %v", err)
			}
		}

	case SessionCompleted:
		r.mu.Lock()
		open := r.sessionOpen
		r.sessionOpen = false
		r.mu.Unlock()
		if open {
			r.closeSession(st, true)
		}
	}
}

func (r *Runner) openSession(st State, now time.Time) {
	r.mu.Lock()
	r.sessionOpen = true
	exercise := r.machine.Rules().ExerciseName
	r.mu.Unlock()
	if r.store == nil {
		return
	}
	if err := r.store.InsertSession(st.SessionID, exercise, now); err != nil {
		opsf("open session failed: %v", err)
	}
}

func (r *Runner) closeSession(st State, completed bool) {
	if r.store == nil {
		return
	}
	if err := r.store.CloseSession(st.SessionID, r.clock.Now(), completed, st.FramesProcessed); err != nil {
		opsf("close session failed: %v", err)
	}
}
