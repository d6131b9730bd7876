// Package api exposes the coaching session over HTTP: live state snapshots,
// detector frame ingestion, session history, runtime tuning parameters and a
// small debug surface.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/kinetic-data/formcoach/internal/config"
	"github.com/kinetic-data/formcoach/internal/pose"
	"github.com/kinetic-data/formcoach/internal/session"
	"github.com/kinetic-data/formcoach/internal/storage/sqlite"
)

// Server serves the coaching API around one session runner.
type Server struct {
	runner *session.Runner
	store  *sqlite.Store // may be nil

	mu     sync.Mutex
	tuning *config.TuningConfig
}

// NewServer builds a Server. store may be nil when persistence is disabled;
// history and summary endpoints then report 404.
func NewServer(runner *session.Runner, store *sqlite.Store, tuning *config.TuningConfig) *Server {
	return &Server{runner: runner, store: store, tuning: tuning}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/frames", s.handleFrames)
	mux.HandleFunc("/api/session", s.handleSession)
	mux.HandleFunc("/api/session/restart", s.handleRestart)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/skeleton", s.handleSkeleton)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/debug/db-stats", s.handleDBStats)
	mux.HandleFunc("/", s.handleHome)
	return mux
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, "FormCoach session server\n")
}

// framePayload is the detector push body: one callback's landmarks.
type framePayload struct {
	Landmarks []pose.Landmark `json:"landmarks"`
}

// handleFrames ingests one pose frame from the detector process. The
// response is written after the frame has fully traversed the pipeline.
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload framePayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid frame payload: %v", err), http.StatusBadRequest)
		return
	}
	if len(payload.Landmarks) != pose.LandmarkCount {
		http.Error(w, fmt.Sprintf("expected %d landmarks, got %d", pose.LandmarkCount, len(payload.Landmarks)),
			http.StatusBadRequest)
		return
	}

	var frame pose.Frame
	copy(frame.Landmarks[:], payload.Landmarks)
	s.runner.OnFrame(&frame)

	w.WriteHeader(http.StatusAccepted)
}

// sessionSnapshot is the live-state response body.
type sessionSnapshot struct {
	State   session.State `json:"state"`
	Message string        `json:"message,omitempty"`
	Kind    string        `json:"message_kind,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, _, msg := s.runner.Snapshot()
	writeJSON(w, sessionSnapshot{
		State:   state,
		Message: msg.Text,
		Kind:    string(msg.Kind),
	})
}

// handleRestart restarts the session on a machine rebuilt from the stored
// tuning config, so updates posted to /api/params take effect here.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.Lock()
	tuning := s.tuning
	s.mu.Unlock()
	s.runner.RestartWith(session.NewMachine(s.runner.Rules(), tuning))
	state, _, _ := s.runner.Snapshot()
	writeJSON(w, sessionSnapshot{State: state})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}
	sessions, err := s.store.Sessions(50)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to list sessions: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sessions)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "session history disabled", http.StatusNotFound)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	summary, err := s.store.Summarize(sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to summarize: %v", err), http.StatusNotFound)
		return
	}
	writeJSON(w, summary)
}

func (s *Server) handleSkeleton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	_, skeleton, _ := s.runner.Snapshot()
	writeJSON(w, skeleton)
}

// handleParams mirrors the tuning schema: GET returns the current config,
// POST validates and stores an update. Updates are restart-scoped, like the
// startup config file: the restart handler rebuilds the session machine from
// the stored config.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, s.tuning)

	case http.MethodPost:
		updated := config.EmptyTuningConfig()
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(updated); err != nil {
			http.Error(w, fmt.Sprintf("invalid params: %v", err), http.StatusBadRequest)
			return
		}
		if err := updated.Validate(); err != nil {
			http.Error(w, fmt.Sprintf("invalid params: %v", err), http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.tuning = updated
		s.mu.Unlock()
		writeJSON(w, updated)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDBStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no database attached", http.StatusNotFound)
		return
	}
	stats := map[string]any{}
	for _, table := range []string{"sessions", "frame_scores", "step_events"} {
		var count int64
		if err := s.store.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			http.Error(w, fmt.Sprintf("failed to count %s: %v", table, err), http.StatusInternalServerError)
			return
		}
		stats[table] = count
	}
	if version, dirty, err := s.store.MigrateVersion(); err == nil {
		stats["schema_version"] = version
		stats["schema_dirty"] = dirty
	}
	writeJSON(w, stats)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
