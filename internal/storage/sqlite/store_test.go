package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrationsApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(path)
	require.NoError(t, err)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.False(t, dirty, "schema should not be dirty after NewStore")
	assert.NotZero(t, version, "schema version should be set")
	require.NoError(t, s.Close())

	// Reopening an already-migrated database must be a no-op, not a failure.
	s2, err := NewStore(path)
	require.NoError(t, err)
	s2.Close()
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	id := uuid.NewString()
	started := time.Unix(1000, 0)

	require.NoError(t, s.InsertSession(id, "leg-raise", started))

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].SessionID)
	assert.Equal(t, "leg-raise", sessions[0].Exercise)
	assert.Zero(t, sessions[0].EndedAtUnixNanos, "fresh session should be open")
	assert.False(t, sessions[0].Completed)

	ended := started.Add(90 * time.Second)
	require.NoError(t, s.CloseSession(id, ended, true, 2700))

	sessions, err = s.Sessions(10)
	require.NoError(t, err)
	assert.True(t, sessions[0].Completed)
	assert.Equal(t, ended.UnixNano(), sessions[0].EndedAtUnixNanos)
	assert.Equal(t, int64(2700), sessions[0].FramesProcessed)
}

func TestSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	older := uuid.NewString()
	newer := uuid.NewString()
	require.NoError(t, s.InsertSession(older, "a", time.Unix(1000, 0)))
	require.NoError(t, s.InsertSession(newer, "b", time.Unix(2000, 0)))

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer, sessions[0].SessionID, "sessions should be ordered newest first")
	assert.Equal(t, older, sessions[1].SessionID)
}

func TestFrameScoresAndStepEvents(t *testing.T) {
	s := newTestStore(t)
	id := uuid.NewString()
	require.NoError(t, s.InsertSession(id, "leg-raise", time.Unix(1000, 0)))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.InsertFrameScore(&FrameScore{
			SessionID:   id,
			TSUnixNanos: int64(1000+i) * 1e9,
			StepIndex:   0,
			Score:       i,
			MaxScore:    3,
			Passed:      i >= 2,
		}))
	}
	require.NoError(t, s.InsertStepEvent(&StepEvent{
		SessionID: id, TSUnixNanos: 1003e9, FromIndex: 0, ToIndex: 1, StepName: "Raise legs",
	}))

	scores, err := s.FrameScores(id)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, 0, scores[0].Score, "scores should come back in time order")
	assert.Equal(t, 2, scores[2].Score)
	assert.True(t, scores[2].Passed)

	events, err := s.StepEvents(id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Raise legs", events[0].StepName)
	assert.Equal(t, 1, events[0].ToIndex)
}

func TestForeignKeyRequiresSession(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertFrameScore(&FrameScore{
		SessionID: "no-such-session", TSUnixNanos: 1, StepIndex: 0, MaxScore: 1,
	})
	assert.Error(t, err, "frame score for an unknown session should violate the foreign key")
}

func TestSummarize(t *testing.T) {
	s := newTestStore(t)
	id := uuid.NewString()
	require.NoError(t, s.InsertSession(id, "leg-raise", time.Unix(1000, 0)))

	// Step 0: fractions 0.5 and 1.0, one pass. Step 1: fraction 1.0, passed.
	samples := []FrameScore{
		{SessionID: id, TSUnixNanos: 1, StepIndex: 0, Score: 1, MaxScore: 2, Passed: false},
		{SessionID: id, TSUnixNanos: 2, StepIndex: 0, Score: 2, MaxScore: 2, Passed: true},
		{SessionID: id, TSUnixNanos: 3, StepIndex: 1, Score: 2, MaxScore: 2, Passed: true},
	}
	for i := range samples {
		require.NoError(t, s.InsertFrameScore(&samples[i]))
	}

	summary, err := s.Summarize(id)
	require.NoError(t, err)
	require.Len(t, summary.Steps, 2)

	step0 := summary.Steps[0]
	assert.Equal(t, 0, step0.StepIndex)
	assert.Equal(t, 2, step0.Samples)
	assert.InDelta(t, 0.75, step0.MeanScoreFrac, 1e-9)
	assert.InDelta(t, 0.5, step0.PassRate, 1e-9)

	step1 := summary.Steps[1]
	assert.Equal(t, 1, step1.Samples)
	assert.Zero(t, step1.StddevScore, "single sample has no spread")

	_, err = s.Summarize("missing")
	assert.Error(t, err, "summarizing an unknown session should fail")
}

func TestPruneSessions(t *testing.T) {
	s := newTestStore(t)
	old := uuid.NewString()
	recent := uuid.NewString()
	require.NoError(t, s.InsertSession(old, "a", time.Now().Add(-48*time.Hour)))
	require.NoError(t, s.InsertSession(recent, "b", time.Now()))
	require.NoError(t, s.InsertFrameScore(&FrameScore{SessionID: old, TSUnixNanos: 1, MaxScore: 1}))

	n, err := s.PruneSessions(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sessions, err := s.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, recent, sessions[0].SessionID)

	// Cascade removed the pruned session's samples.
	scores, err := s.FrameScores(old)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
