package session

import "github.com/kinetic-data/formcoach/internal/pose"

// Effect is an externally visible action requested by the reducer. Effects
// are returned as data and executed by the Runner after state computation
// completes, so the reducer itself stays pure and testable without a UI,
// video element or speech engine.
type Effect interface {
	effect()
}

// Speak requests a spoken utterance.
type Speak struct {
	Text string
}

// ShowMessage requests a visual feedback line. Kind distinguishes
// positioning warnings from form corrections and transitions so the UI can
// style them differently.
type ShowMessage struct {
	Text string
	Kind MessageKind
}

// MessageKind classifies a ShowMessage effect.
type MessageKind string

const (
	MessagePositioning MessageKind = "positioning"
	MessageCorrection  MessageKind = "correction"
	MessageTransition  MessageKind = "transition"
	MessageProgress    MessageKind = "progress"
)

// PlayVideo requests that the reference video resume playback.
type PlayVideo struct{}

// PauseVideo requests that the reference video pause.
type PauseVideo struct{}

// SeekVideo requests that the reference video jump to a playback time.
// Issued only on restart.
type SeekVideo struct {
	Time float64
}

// StepAdvanced announces a step transition for persistence and UI.
type StepAdvanced struct {
	FromIndex int
	ToIndex   int
	StepName  string
}

// SessionCompleted announces that the final step's stability threshold was
// reached. The machine does not auto-reset afterwards.
type SessionCompleted struct{}

// Render supplies the drawable skeleton for this frame.
type Render struct {
	Skeleton pose.Skeleton
}

// RecordScore requests persistence of this frame's evaluation outcome.
type RecordScore struct {
	StepIndex int
	Score     int
	MaxScore  int
	Passed    bool
}

func (Speak) effect()            {}
func (ShowMessage) effect()      {}
func (PlayVideo) effect()        {}
func (PauseVideo) effect()       {}
func (SeekVideo) effect()        {}
func (StepAdvanced) effect()     {}
func (SessionCompleted) effect() {}
func (Render) effect()           {}
func (RecordScore) effect()      {}
