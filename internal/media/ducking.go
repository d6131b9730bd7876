package media

import "sync"

// DuckingSpeaker wraps a SpeechSynthesizer so the reference video's volume
// is lowered while an utterance plays and restored when it completes or
// errors. Overlapping utterances keep the volume ducked until the last one
// finishes.
type DuckingSpeaker struct {
	speech SpeechSynthesizer
	video  VideoController

	rate          float64
	volume        float64
	duckedVolume  float64
	restoreVolume float64

	mu     sync.Mutex
	active int
}

// NewDuckingSpeaker builds a DuckingSpeaker. video may be nil, in which case
// no ducking happens and speech passes straight through.
func NewDuckingSpeaker(speech SpeechSynthesizer, video VideoController, rate, volume, duckedVolume float64) *DuckingSpeaker {
	return &DuckingSpeaker{
		speech:        speech,
		video:         video,
		rate:          rate,
		volume:        volume,
		duckedVolume:  duckedVolume,
		restoreVolume: 1,
	}
}

// Say utters text best-effort. Unsupported engines are a silent no-op.
func (d *DuckingSpeaker) Say(text string) error {
	d.mu.Lock()
	if d.video != nil && d.active == 0 {
		// Duck once for the first overlapping utterance.
		if err := d.video.SetVolume(d.duckedVolume); err != nil {
			opsf("ducking video volume failed: %v", err)
		}
	}
	d.active++
	d.mu.Unlock()

	err := d.speech.Speak(text, d.rate, d.volume, func(error) {
		d.release()
	})
	if err != nil {
		d.release()
		return err
	}
	return nil
}

// Cancel halts in-flight speech and restores volume immediately.
func (d *DuckingSpeaker) Cancel() {
	d.speech.Cancel()
	d.mu.Lock()
	d.active = 0
	if d.video != nil {
		if err := d.video.SetVolume(d.restoreVolume); err != nil {
			opsf("restoring video volume failed: %v", err)
		}
	}
	d.mu.Unlock()
}

func (d *DuckingSpeaker) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active > 0 {
		d.active--
	}
	if d.active == 0 && d.video != nil {
		if err := d.video.SetVolume(d.restoreVolume); err != nil {
			opsf("restoring video volume failed: %v", err)
		}
	}
}
