// Command replay runs a recorded pose stream through the coaching pipeline
// and prints a transcript of every effect the reducer emits.
//
// The recording is JSONL: one object per line with the frame's offset from
// recording start in seconds and the 33 detector landmarks. Frame timing is
// replayed on a mock clock, so a minute-long recording analyses in
// milliseconds.
//
// Usage:
//
//	go run ./cmd/tools/replay -ruleset ruleset.json -frames session.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kinetic-data/formcoach/internal/config"
	"github.com/kinetic-data/formcoach/internal/media"
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/ruleset"
	"github.com/kinetic-data/formcoach/internal/session"
	"github.com/kinetic-data/formcoach/internal/timeutil"
)

// frameRecord is one line of the JSONL recording.
type frameRecord struct {
	OffsetSeconds float64         `json:"t"`
	Landmarks     []pose.Landmark `json:"landmarks"`
}

func main() {
	rulesetPath := flag.String("ruleset", "", "Validation ruleset JSON (required)")
	framesPath := flag.String("frames", "", "JSONL pose recording (required)")
	tuningPath := flag.String("tuning", "", "Tuning config JSON (defaults to built-in values)")
	noVideo := flag.Bool("no-video", false, "Replay self-paced, without the reference video timeline")
	flag.Parse()

	if *rulesetPath == "" || *framesPath == "" {
		log.Fatal("Error: -ruleset and -frames flags are required")
	}

	rules, err := ruleset.Load(*rulesetPath)
	if err != nil {
		log.Fatalf("Failed to load ruleset: %v", err)
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		tuning, err = config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
	}

	f, err := os.Open(*framesPath)
	if err != nil {
		log.Fatalf("Failed to open recording: %v", err)
	}
	defer f.Close()

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	var video *media.PlaybackClock
	if !*noVideo {
		video = media.NewPlaybackClock(clock)
	}

	machine := session.NewMachine(rules, tuning)
	state := machine.NewState()

	var frames, advances int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec frameRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Fatalf("Bad record at frame %d: %v", frames, err)
		}
		if len(rec.Landmarks) != pose.LandmarkCount {
			log.Fatalf("Bad record at frame %d: expected %d landmarks, got %d",
				frames, pose.LandmarkCount, len(rec.Landmarks))
		}

		clock.Set(time.Unix(0, 0).Add(time.Duration(rec.OffsetSeconds * float64(time.Second))))
		var frame pose.Frame
		copy(frame.Landmarks[:], rec.Landmarks)

		snapshot := session.VideoSnapshot{}
		if video != nil {
			snapshot = session.VideoSnapshot{
				Attached:    true,
				CurrentTime: video.CurrentTime(),
				Paused:      video.Paused(),
			}
		}

		var effects []session.Effect
		state, effects = machine.Advance(state, &frame, snapshot, clock.Now())
		frames++

		for _, effect := range effects {
			applyVideo(video, effect)
			if line := describe(effect); line != "" {
				fmt.Printf("[%7.2fs] step=%d %s\n", rec.OffsetSeconds, state.CurrentStepIndex, line)
			}
			if _, ok := effect.(session.StepAdvanced); ok {
				advances++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read recording: %v", err)
	}

	fmt.Printf("\n%d frames, %d step advances, phase=%s completed=%v\n",
		frames, advances, state.Phase, state.Completed)
}

// applyVideo mirrors the Runner's video effect execution onto the replay
// timeline so StepAt sees the positions a live session would.
func applyVideo(video *media.PlaybackClock, effect session.Effect) {
	if video == nil {
		return
	}
	switch e := effect.(type) {
	case session.PlayVideo:
		video.Play()
	case session.PauseVideo:
		video.Pause()
	case session.SeekVideo:
		video.Seek(e.Time)
	}
}

func describe(effect session.Effect) string {
	switch e := effect.(type) {
	case session.Speak:
		return fmt.Sprintf("speak %q", e.Text)
	case session.ShowMessage:
		return fmt.Sprintf("message [%s] %q", e.Kind, e.Text)
	case session.PlayVideo:
		return "video play"
	case session.PauseVideo:
		return "video pause"
	case session.SeekVideo:
		return fmt.Sprintf("video seek %.2fs", e.Time)
	case session.StepAdvanced:
		return fmt.Sprintf("advanced %d -> %d (%s)", e.FromIndex, e.ToIndex, e.StepName)
	case session.SessionCompleted:
		return "session completed"
	case session.RecordScore:
		if !e.Passed {
			return fmt.Sprintf("score %d/%d FAIL", e.Score, e.MaxScore)
		}
		return ""
	default:
		return ""
	}
}
