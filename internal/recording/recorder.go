// Package recording persists run milestones through the store. The
// executor records session starts the moment metadata is recovered, before
// any commit exists, so a crash mid-round still leaves the session pointers
// on disk.
package recording

import (
	"time"

	"github.com/agusx1211/swarmix/internal/store"
)

// Recorder receives run milestones. The production implementation writes
// them to the store; tests substitute fakes.
type Recorder interface {
	// RecordSessionStart persists one agent's recovered session pointer.
	// Called before the agent's commit; a failure here fails the agent.
	RecordSessionStart(agentID, sessionID, rolloutPath string) error

	// RecordRound appends a finished round to the history.
	RecordRound(rec *store.RoundRecord) error
}

// StoreRecorder persists milestones to a run's store.
type StoreRecorder struct {
	store *store.Store
	runID string
}

// NewStoreRecorder builds a recorder bound to one run.
func NewStoreRecorder(s *store.Store, runID string) *StoreRecorder {
	return &StoreRecorder{store: s, runID: runID}
}

// RecordSessionStart implements Recorder.
func (r *StoreRecorder) RecordSessionStart(agentID, sessionID, rolloutPath string) error {
	return r.store.UpdateLiveSession(r.runID, store.SessionEntry{
		AgentID:     agentID,
		SessionID:   sessionID,
		RolloutPath: rolloutPath,
		StartedAt:   time.Now().UTC(),
	})
}

// RecordRound implements Recorder.
func (r *StoreRecorder) RecordRound(rec *store.RoundRecord) error {
	return r.store.AppendRound(rec)
}
