package media

// LogSpeech is a SpeechSynthesizer that writes utterances to the media ops
// log and completes them immediately. Used when no real engine is attached;
// the spoken channel degrades to a logged one rather than failing.
type LogSpeech struct{}

// Speak logs the utterance and completes synchronously.
func (LogSpeech) Speak(text string, rate, volume float64, done func(err error)) error {
	opsf("speak (rate=%.1f vol=%.1f): %s", rate, volume, text)
	if done != nil {
		done(nil)
	}
	return nil
}

// Cancel is a no-op; LogSpeech has no in-flight utterances.
func (LogSpeech) Cancel() {}
