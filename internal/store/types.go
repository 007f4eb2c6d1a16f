package store

import "time"

// AgentOutcome is the durable record of one agent that completed its
// pipeline: forked session, isolated branch, final commit.
type AgentOutcome struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	SessionID   string `json:"session_id"`
	RolloutPath string `json:"rollout_path,omitempty"`
	Branch      string `json:"branch"`
	CommitHash  string `json:"commit_hash"`
}

// AgentFailureRecord is the durable record of one agent that failed.
// Stage names the pipeline step that broke: "worktree", "execute",
// "metadata", "record" or "commit".
type AgentFailureRecord struct {
	AgentID string `json:"agent_id"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

// RoundRecord is one completed fan-out round, successes and failures both.
type RoundRecord struct {
	RecordID      string    `json:"record_id"`
	RunID         string    `json:"run_id"`
	ParentSession string    `json:"parent_session"`
	Task          string    `json:"task"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Cancelled     bool      `json:"cancelled,omitempty"`

	Agents   []AgentOutcome       `json:"agents"`
	Failures []AgentFailureRecord `json:"failures,omitempty"`
	Skipped  []string             `json:"skipped,omitempty"`
}

// SessionEntry is one agent's live session pointer, written the moment the
// side-channel metadata is recovered so observers can attach before the
// agent commits.
type SessionEntry struct {
	AgentID     string    `json:"agent_id"`
	SessionID   string    `json:"session_id"`
	RolloutPath string    `json:"rollout_path"`
	StartedAt   time.Time `json:"started_at"`
}

// LiveSessions maps agent ids to session pointers for the most recent run.
type LiveSessions struct {
	RunID     string                  `json:"run_id"`
	UpdatedAt time.Time               `json:"updated_at"`
	Agents    map[string]SessionEntry `json:"agents"`
}
