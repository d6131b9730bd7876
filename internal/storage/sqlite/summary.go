package sqlite

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StepSummary aggregates a session's frame scores for one step.
type StepSummary struct {
	StepIndex     int     `json:"step_index"`
	Samples       int     `json:"samples"`
	MeanScoreFrac float64 `json:"mean_score_frac"` // mean of score/max_score
	StddevScore   float64 `json:"stddev_score"`    // sample stddev of score/max_score
	PassRate      float64 `json:"pass_rate"`
}

// SessionSummary is the post-session report for one run.
type SessionSummary struct {
	Session Session       `json:"session"`
	Steps   []StepSummary `json:"steps"`
}

// Summarize computes per-step score statistics for a session.
func (s *Store) Summarize(sessionID string) (*SessionSummary, error) {
	sessions, err := s.Sessions(0)
	if err != nil {
		return nil, err
	}
	var sess *Session
	for i := range sessions {
		if sessions[i].SessionID == sessionID {
			sess = &sessions[i]
			break
		}
	}
	if sess == nil {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}

	scores, err := s.FrameScores(sessionID)
	if err != nil {
		return nil, err
	}

	fracs := make(map[int][]float64)
	passes := make(map[int]int)
	for _, fs := range scores {
		frac := 0.0
		if fs.MaxScore > 0 {
			frac = float64(fs.Score) / float64(fs.MaxScore)
		}
		fracs[fs.StepIndex] = append(fracs[fs.StepIndex], frac)
		if fs.Passed {
			passes[fs.StepIndex]++
		}
	}

	indices := make([]int, 0, len(fracs))
	for idx := range fracs {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	summary := &SessionSummary{Session: *sess}
	for _, idx := range indices {
		samples := fracs[idx]
		mean, std := stat.MeanStdDev(samples, nil)
		if len(samples) < 2 {
			std = 0
		}
		summary.Steps = append(summary.Steps, StepSummary{
			StepIndex:     idx,
			Samples:       len(samples),
			MeanScoreFrac: mean,
			StddevScore:   std,
			PassRate:      float64(passes[idx]) / float64(len(samples)),
		})
	}
	return summary, nil
}
