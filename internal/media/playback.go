package media

import (
	"sync"

	"github.com/kinetic-data/formcoach/internal/timeutil"
)

// PlaybackClock is a software implementation of VideoController: it tracks
// the reference video's timeline in-process while the pixels are rendered by
// the client. Playback time advances with the wall clock while playing.
type PlaybackClock struct {
	clock timeutil.Clock

	mu      sync.Mutex
	playing bool
	offset  float64 // seconds accumulated before the current play run
	baseAt  int64   // unix nanos when the current play run started
	volume  float64

	// Duration, when > 0, clamps the playback position.
	Duration float64
}

// NewPlaybackClock returns a paused PlaybackClock at time zero.
func NewPlaybackClock(clock timeutil.Clock) *PlaybackClock {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &PlaybackClock{clock: clock, volume: 1}
}

// CurrentTime returns the playback position in seconds.
func (p *PlaybackClock) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position()
}

func (p *PlaybackClock) position() float64 {
	pos := p.offset
	if p.playing {
		pos += float64(p.clock.Now().UnixNano()-p.baseAt) / 1e9
	}
	if p.Duration > 0 && pos > p.Duration {
		pos = p.Duration
	}
	return pos
}

// Paused reports whether the clock is paused.
func (p *PlaybackClock) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.playing
}

// Play starts the clock.
func (p *PlaybackClock) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return nil
	}
	p.playing = true
	p.baseAt = p.clock.Now().UnixNano()
	return nil
}

// Pause freezes the clock.
func (p *PlaybackClock) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.playing {
		return nil
	}
	p.offset = p.position()
	p.playing = false
	return nil
}

// Seek moves the clock to the given position.
func (p *PlaybackClock) Seek(seconds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offset = seconds
	p.baseAt = p.clock.Now().UnixNano()
	return nil
}

// SetVolume records the volume; the client applies it when polling.
func (p *PlaybackClock) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

// Volume returns the last volume set.
func (p *PlaybackClock) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}
