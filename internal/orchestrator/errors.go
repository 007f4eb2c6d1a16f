package orchestrator

import "fmt"

// PlanningError means the round never produced a roster. It is fatal: no
// worktrees exist and no agents ran.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// WorktreeError covers worktree setup failures. An empty AgentID means the
// manager itself could not initialize, which is fatal for the round.
type WorktreeError struct {
	AgentID string
	Err     error
}

func (e *WorktreeError) Error() string {
	if e.AgentID == "" {
		return fmt.Sprintf("worktree manager: %v", e.Err)
	}
	return fmt.Sprintf("agent %s worktree: %v", e.AgentID, e.Err)
}

func (e *WorktreeError) Unwrap() error { return e.Err }

// AgentFailure records one agent that started a round stage and did not
// finish it. Stage is the pipeline step that broke.
type AgentFailure struct {
	AgentID string
	Stage   string
	Err     error
}

func (f *AgentFailure) Error() string {
	return fmt.Sprintf("agent %s failed at %s: %v", f.AgentID, f.Stage, f.Err)
}

func (f *AgentFailure) Unwrap() error { return f.Err }
