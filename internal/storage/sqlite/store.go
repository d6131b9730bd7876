// Package sqlite persists coaching sessions: the session records themselves,
// per-frame score samples and step transition events. It is an adapter, not
// a pipeline stage; the session runner writes to it from effect execution.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the session database.
type Store struct {
	*sql.DB
}

// NewStore opens (creating if necessary) the session database at path and
// applies pending migrations. Use ":memory:" for tests.
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session db: %w", err)
	}

	// Pragmas apply per connection, so pin the pool to one. The pipeline is
	// a single writer with occasional API readers; WAL keeps those readers
	// from blocking the frame callback's inserts.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{DB: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Session is one coaching run, open until EndedAtUnixNanos is set.
type Session struct {
	SessionID          string `json:"session_id"`
	Exercise           string `json:"exercise"`
	StartedAtUnixNanos int64  `json:"started_at_unix_nanos"`
	EndedAtUnixNanos   int64  `json:"ended_at_unix_nanos,omitempty"`
	Completed          bool   `json:"completed"`
	FramesProcessed    int64  `json:"frames_processed"`
}

// FrameScore is one frame's evaluation outcome.
type FrameScore struct {
	SessionID   string `json:"session_id"`
	TSUnixNanos int64  `json:"ts_unix_nanos"`
	StepIndex   int    `json:"step_index"`
	Score       int    `json:"score"`
	MaxScore    int    `json:"max_score"`
	Passed      bool   `json:"passed"`
}

// StepEvent is one step transition within a session.
type StepEvent struct {
	SessionID   string `json:"session_id"`
	TSUnixNanos int64  `json:"ts_unix_nanos"`
	FromIndex   int    `json:"from_index"`
	ToIndex     int    `json:"to_index"`
	StepName    string `json:"step_name"`
}

// InsertSession creates a session record at its start.
func (s *Store) InsertSession(sessionID, exercise string, startedAt time.Time) error {
	_, err := s.Exec(
		`INSERT INTO sessions (session_id, exercise, started_at_unix_nanos) VALUES (?, ?, ?)`,
		sessionID, exercise, startedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", sessionID, err)
	}
	return nil
}

// CloseSession finalizes a session record.
func (s *Store) CloseSession(sessionID string, endedAt time.Time, completed bool, framesProcessed int) error {
	_, err := s.Exec(
		`UPDATE sessions SET ended_at_unix_nanos = ?, completed = ?, frames_processed = ? WHERE session_id = ?`,
		endedAt.UnixNano(), completed, framesProcessed, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to close session %s: %w", sessionID, err)
	}
	return nil
}

// InsertFrameScore records one frame's evaluation outcome.
func (s *Store) InsertFrameScore(fs *FrameScore) error {
	_, err := s.Exec(
		`INSERT INTO frame_scores (session_id, ts_unix_nanos, step_index, score, max_score, passed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fs.SessionID, fs.TSUnixNanos, fs.StepIndex, fs.Score, fs.MaxScore, fs.Passed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert frame score: %w", err)
	}
	return nil
}

// InsertStepEvent records a step transition.
func (s *Store) InsertStepEvent(ev *StepEvent) error {
	_, err := s.Exec(
		`INSERT INTO step_events (session_id, ts_unix_nanos, from_index, to_index, step_name)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.TSUnixNanos, ev.FromIndex, ev.ToIndex, ev.StepName,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step event: %w", err)
	}
	return nil
}

// Sessions returns the most recent sessions, newest first.
func (s *Store) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Query(
		`SELECT session_id, exercise, started_at_unix_nanos,
		        COALESCE(ended_at_unix_nanos, 0), completed, frames_processed
		 FROM sessions ORDER BY started_at_unix_nanos DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.SessionID, &sess.Exercise, &sess.StartedAtUnixNanos,
			&sess.EndedAtUnixNanos, &sess.Completed, &sess.FramesProcessed); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// FrameScores returns every score sample for a session in time order.
func (s *Store) FrameScores(sessionID string) ([]FrameScore, error) {
	rows, err := s.Query(
		`SELECT session_id, ts_unix_nanos, step_index, score, max_score, passed
		 FROM frame_scores WHERE session_id = ? ORDER BY ts_unix_nanos`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame scores: %w", err)
	}
	defer rows.Close()

	var out []FrameScore
	for rows.Next() {
		var fs FrameScore
		if err := rows.Scan(&fs.SessionID, &fs.TSUnixNanos, &fs.StepIndex,
			&fs.Score, &fs.MaxScore, &fs.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan frame score: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// StepEvents returns every step transition for a session in time order.
func (s *Store) StepEvents(sessionID string) ([]StepEvent, error) {
	rows, err := s.Query(
		`SELECT session_id, ts_unix_nanos, from_index, to_index, step_name
		 FROM step_events WHERE session_id = ? ORDER BY ts_unix_nanos`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step events: %w", err)
	}
	defer rows.Close()

	var out []StepEvent
	for rows.Next() {
		var ev StepEvent
		if err := rows.Scan(&ev.SessionID, &ev.TSUnixNanos, &ev.FromIndex,
			&ev.ToIndex, &ev.StepName); err != nil {
			return nil, fmt.Errorf("failed to scan step event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneSessions deletes sessions (and their samples, via cascade) older than
// ttl, returning the number removed. Keeps storage bounded on long-running
// kiosks.
func (s *Store) PruneSessions(ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).UnixNano()
	res, err := s.Exec(`DELETE FROM sessions WHERE started_at_unix_nanos < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return res.RowsAffected()
}
