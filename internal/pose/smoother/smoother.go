// Package smoother damps per-frame jitter from the upstream detector by
// averaging landmark positions over a short sliding window.
package smoother

import (
	"github.com/kinetic-data/formcoach/internal/pose"
)

// Smoother maintains a fixed-length FIFO window of raw frames and emits the
// per-landmark arithmetic mean of x, y and z. Visibility is deliberately not
// smoothed: it is evaluated on the raw current frame by the gate, so a
// landmark that just dropped out is noticed immediately.
//
// The window is kept as running sums so a push is O(LandmarkCount) rather
// than O(window × LandmarkCount). Deterministic given the same push sequence.
type Smoother struct {
	window int
	buf    []pose.Frame // ring buffer, len == window once warm
	next   int          // slot the next push writes to
	count  int          // frames currently buffered
	sumX   [pose.LandmarkCount]float64
	sumY   [pose.LandmarkCount]float64
	sumZ   [pose.LandmarkCount]float64
}

// New returns a Smoother with the given window size. Window sizes below 1
// are clamped to 1 (passthrough).
func New(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{
		window: window,
		buf:    make([]pose.Frame, window),
	}
}

// Window returns the configured window size.
func (s *Smoother) Window() int { return s.window }

// Ready reports whether the buffer has filled and Push will emit output.
func (s *Smoother) Ready() bool { return s.count == s.window }

// Push adds a raw frame to the window. It returns ok=false until the window
// is full; thereafter it returns a smoothed frame whose x/y/z are the mean
// across the buffered frames and whose visibility values are taken from the
// raw frame just pushed.
func (s *Smoother) Push(frame *pose.Frame) (*pose.Frame, bool) {
	if s.count == s.window {
		// Evict the oldest frame from the running sums.
		old := &s.buf[s.next]
		for i := 0; i < pose.LandmarkCount; i++ {
			s.sumX[i] -= old.Landmarks[i].X
			s.sumY[i] -= old.Landmarks[i].Y
			s.sumZ[i] -= old.Landmarks[i].Z
		}
		s.count--
	}

	s.buf[s.next] = *frame
	s.next = (s.next + 1) % s.window
	s.count++
	for i := 0; i < pose.LandmarkCount; i++ {
		s.sumX[i] += frame.Landmarks[i].X
		s.sumY[i] += frame.Landmarks[i].Y
		s.sumZ[i] += frame.Landmarks[i].Z
	}

	if s.count < s.window {
		return nil, false
	}

	out := &pose.Frame{RecvdUnixNanos: frame.RecvdUnixNanos}
	n := float64(s.window)
	for i := 0; i < pose.LandmarkCount; i++ {
		out.Landmarks[i] = pose.Landmark{
			X:          s.sumX[i] / n,
			Y:          s.sumY[i] / n,
			Z:          s.sumZ[i] / n,
			Visibility: frame.Landmarks[i].Visibility,
		}
	}
	return out, true
}

// Reset discards the buffered window. Used on session restart.
func (s *Smoother) Reset() {
	s.next = 0
	s.count = 0
	s.sumX = [pose.LandmarkCount]float64{}
	s.sumY = [pose.LandmarkCount]float64{}
	s.sumZ = [pose.LandmarkCount]float64{}
}
