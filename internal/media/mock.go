package media

import "sync"

// MockVideo is an in-memory VideoController for tests and for headless runs
// where no video element is attached. The clock does not self-advance; tests
// and the replay tool move it explicitly.
type MockVideo struct {
	mu          sync.Mutex
	currentTime float64
	paused      bool
	volume      float64

	// Command log for assertions.
	PlayCalls  int
	PauseCalls int
	SeekCalls  []float64

	// PlayErr / PauseErr, when set, are returned by the corresponding
	// command to exercise rejection handling.
	PlayErr  error
	PauseErr error
}

// NewMockVideo returns a paused MockVideo at time zero with full volume.
func NewMockVideo() *MockVideo {
	return &MockVideo{paused: true, volume: 1}
}

// CurrentTime returns the mock playback position.
func (m *MockVideo) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

// SetCurrentTime moves the mock playback position.
func (m *MockVideo) SetCurrentTime(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = seconds
}

// Advance moves the mock playback position forward when playing.
func (m *MockVideo) Advance(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.paused {
		m.currentTime += seconds
	}
}

// Paused reports the mock paused flag.
func (m *MockVideo) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Play resumes mock playback.
func (m *MockVideo) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayCalls++
	if m.PlayErr != nil {
		return m.PlayErr
	}
	m.paused = false
	return nil
}

// Pause pauses mock playback.
func (m *MockVideo) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PauseCalls++
	if m.PauseErr != nil {
		return m.PauseErr
	}
	m.paused = true
	return nil
}

// Seek moves the mock playback position.
func (m *MockVideo) Seek(seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SeekCalls = append(m.SeekCalls, seconds)
	m.currentTime = seconds
	return nil
}

// SetVolume records the mock volume.
func (m *MockVideo) SetVolume(v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
	return nil
}

// Volume returns the last volume set.
func (m *MockVideo) Volume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.volume
}

// MockSpeech is an in-memory SpeechSynthesizer recording utterances.
type MockSpeech struct {
	mu         sync.Mutex
	Utterances []string
	Cancels    int

	// SpeakErr, when set, is returned by Speak to exercise the unsupported
	// path.
	SpeakErr error

	// AutoComplete, when true, invokes done(nil) synchronously inside Speak.
	AutoComplete bool

	pending []func(err error)
}

// NewMockSpeech returns a MockSpeech that completes utterances when
// CompleteAll is called.
func NewMockSpeech() *MockSpeech {
	return &MockSpeech{}
}

// Speak records the utterance.
func (m *MockSpeech) Speak(text string, rate, volume float64, done func(err error)) error {
	m.mu.Lock()
	if m.SpeakErr != nil {
		err := m.SpeakErr
		m.mu.Unlock()
		return err
	}
	m.Utterances = append(m.Utterances, text)
	auto := m.AutoComplete
	if done != nil && !auto {
		m.pending = append(m.pending, done)
	}
	m.mu.Unlock()

	if auto && done != nil {
		done(nil)
	}
	return nil
}

// Cancel drops pending completions and counts the call.
func (m *MockSpeech) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancels++
	m.pending = nil
}

// CompleteAll fires every pending done callback with err. Lets tests
// simulate utterance completions arriving on a later callback.
func (m *MockSpeech) CompleteAll(err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, done := range pending {
		done(err)
	}
}
