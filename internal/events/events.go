// Package events defines the progress messages emitted during a fan-out
// round. The orchestrator offers them to an events channel; the live TUI and
// the web observer both consume the same types.
package events

import "time"

// AgentInfo is the display view of one planned agent role.
type AgentInfo struct {
	ID   string
	Name string
	Role string
}

// RunStartedMsg signals that a run was registered and planning is starting.
type RunStartedMsg struct {
	RunID         string
	ParentSession string
	Task          string
	StartedAt     time.Time
}

// PlanReadyMsg carries the planner's agent roster.
type PlanReadyMsg struct {
	RunID  string
	Agents []AgentInfo
}

// WorktreeReadyMsg signals that an agent's isolated worktree exists.
type WorktreeReadyMsg struct {
	RunID   string
	AgentID string
	Branch  string
	Path    string
}

// AgentStartedMsg signals that an agent's worker subprocess was launched.
type AgentStartedMsg struct {
	RunID   string
	AgentID string
}

// AgentSessionMsg carries recovered session metadata. It is emitted as soon
// as the side-channel file is parsed, before the agent's commit happens.
type AgentSessionMsg struct {
	RunID       string
	AgentID     string
	SessionID   string
	RolloutPath string
}

// AgentFinishedMsg signals that one agent completed its full pipeline.
type AgentFinishedMsg struct {
	RunID      string
	AgentID    string
	SessionID  string
	CommitHash string
	Branch     string
}

// AgentFailedMsg signals a per-agent failure; siblings keep running.
type AgentFailedMsg struct {
	RunID   string
	AgentID string
	Stage   string // "worktree", "execute", "metadata", "record", "commit"
	Err     error
}

// AgentSkippedMsg signals that an agent never started because the run's
// cancellation token was signalled first.
type AgentSkippedMsg struct {
	RunID   string
	AgentID string
}

// RunFinishedMsg is the terminal event for a round.
type RunFinishedMsg struct {
	RunID     string
	Succeeded int
	Failed    int
	Skipped   int
	Cancelled bool
	Err       error // fatal run error (registration or planning), nil otherwise
}

// ProgressMsg is a free-form milestone line for plain-text observers.
type ProgressMsg struct {
	RunID string
	Line  string
}
