// Package media wraps the two external playback endpoints the session
// controls: the reference demonstration video and the speech synthesizer.
// Both are modeled as narrow interfaces with mock implementations so the
// pipeline and its tests never touch a real media element.
package media

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrUnsupported is returned by endpoints that are not available in the
// current environment. Callers treat it as a no-op condition, never fatal.
var ErrUnsupported = errors.New("media: endpoint unsupported")

// VideoController is the reference video boundary. CurrentTime and Paused
// are snapshot reads taken at frame-callback entry; Play and Pause are
// asynchronous commands whose acknowledgment may arrive on a later callback
// and whose rejections are logged and otherwise ignored.
type VideoController interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64

	// Paused reports whether playback is currently paused.
	Paused() bool

	// Play requests playback to resume.
	Play() error

	// Pause requests playback to pause.
	Pause() error

	// Seek requests a jump to the given playback time in seconds.
	Seek(seconds float64) error

	// SetVolume sets playback volume in [0, 1]. Used for speech ducking.
	SetVolume(v float64) error
}

// SpeechSynthesizer is the spoken-output boundary. Best effort: an
// unsupported engine returns ErrUnsupported from Speak and the caller moves
// on.
type SpeechSynthesizer interface {
	// Speak utters text at the given rate and volume. done, when non-nil,
	// is invoked once the utterance finishes or errors.
	Speak(text string, rate, volume float64, done func(err error)) error

	// Cancel synchronously halts any in-flight utterance.
	Cancel()
}

// conventionalVideoNames is the fixed ordered list of filenames probed in
// the asset directory when resolving the reference video. The first that
// resolves wins.
var conventionalVideoNames = []string{
	"reference.mp4",
	"demo.mp4",
	"exercise.mp4",
	"reference.webm",
	"demo.webm",
}

// ResolveVideoPath probes the conventional filenames under assetDir and
// returns the first that exists. If none resolves and userFile is non-empty,
// the user-supplied file is used instead. An empty return means no video:
// pose scoring still proceeds, but the session runs self-paced.
func ResolveVideoPath(assetDir, userFile string) string {
	for _, name := range conventionalVideoNames {
		p := filepath.Join(assetDir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	if userFile != "" {
		if info, err := os.Stat(userFile); err == nil && !info.IsDir() {
			return userFile
		}
	}
	return ""
}
