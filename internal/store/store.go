// Package store persists run history under the repository's .swarmix/
// directory as human-readable JSON documents. rounds.json is the
// append-only history of finished rounds; round_sessions.json carries the
// live session pointers of the run in flight.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SwarmixDir is the per-repository data directory.
const SwarmixDir = ".swarmix"

const (
	roundsFile       = "rounds.json"
	liveSessionsFile = "round_sessions.json"
)

type Store struct {
	root string // path to the .swarmix directory
	mu   sync.RWMutex
}

// New returns a store rooted at projectDir/.swarmix. Nothing is created
// until the first write.
func New(projectDir string) (*Store, error) {
	return &Store{root: filepath.Join(projectDir, SwarmixDir)}, nil
}

// Root returns the .swarmix directory path. Side-channel metadata files,
// planner artifacts and the control socket all live under it.
func (s *Store) Root() string {
	return s.root
}

// EnsureRoot creates the .swarmix directory if needed.
func (s *Store) EnsureRoot() error {
	return os.MkdirAll(s.root, 0755)
}

// Exists reports whether the store directory is present.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// AppendRound assigns the record a fresh id and appends it to the round
// history.
func (s *Store) AppendRound(rec *RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.RecordID == "" {
		rec.RecordID = uuid.NewString()
	}

	var rounds []RoundRecord
	path := filepath.Join(s.root, roundsFile)
	if err := s.readJSON(path, &rounds); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading round history: %w", err)
	}
	rounds = append(rounds, *rec)

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return err
	}
	return s.writeJSON(path, rounds)
}

// ListRounds returns the round history in append order, oldest first. A
// missing history file means no rounds yet, not an error.
func (s *Store) ListRounds() ([]RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rounds []RoundRecord
	if err := s.readJSON(filepath.Join(s.root, roundsFile), &rounds); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return rounds, nil
}

// GetRound finds a round by record id or run id.
func (s *Store) GetRound(id string) (*RoundRecord, error) {
	rounds, err := s.ListRounds()
	if err != nil {
		return nil, err
	}
	// Newest match wins when run ids collide across retries.
	for i := len(rounds) - 1; i >= 0; i-- {
		if rounds[i].RecordID == id || rounds[i].RunID == id {
			rec := rounds[i]
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("round %s: %w", id, os.ErrNotExist)
}

// UpdateLiveSession records one agent's session pointer for runID. The live
// document is replaced when a new run starts writing.
func (s *Store) UpdateLiveSession(runID string, entry SessionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.root, liveSessionsFile)

	var doc LiveSessions
	if err := s.readJSON(path, &doc); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading live sessions: %w", err)
	}
	if doc.RunID != runID || doc.Agents == nil {
		doc = LiveSessions{RunID: runID, Agents: make(map[string]SessionEntry)}
	}
	doc.Agents[entry.AgentID] = entry
	doc.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(s.root, 0755); err != nil {
		return err
	}
	return s.writeJSON(path, &doc)
}

// LoadLiveSessions returns the live session document. A missing file means
// an empty document.
func (s *Store) LoadLiveSessions() (*LiveSessions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var doc LiveSessions
	if err := s.readJSON(filepath.Join(s.root, liveSessionsFile), &doc); err != nil {
		if os.IsNotExist(err) {
			return &LiveSessions{Agents: make(map[string]SessionEntry)}, nil
		}
		return nil, err
	}
	if doc.Agents == nil {
		doc.Agents = make(map[string]SessionEntry)
	}
	return &doc, nil
}

// writeJSON writes v through a temp file and rename so a crash mid-write
// never leaves a torn document behind.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
