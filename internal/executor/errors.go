package executor

import "fmt"

// ExecError reports a worker subprocess that could not run or exited
// non-zero. ExitCode is -1 when the process never started.
type ExecError struct {
	AgentID  string
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("agent %s worker failed with exit code %d", e.AgentID, e.ExitCode)
	}
	return fmt.Sprintf("agent %s worker failed with exit code %d: %s", e.AgentID, e.ExitCode, e.Stderr)
}

// MetadataError reports a missing or unusable side-channel metadata file.
type MetadataError struct {
	AgentID string
	Path    string
	Err     error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("agent %s session metadata %s: %v", e.AgentID, e.Path, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }

// RecordError reports a failure to persist an agent's session start.
type RecordError struct {
	AgentID string
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("agent %s session record: %v", e.AgentID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// CommitError reports a failed round commit in the agent's worktree.
type CommitError struct {
	AgentID string
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("agent %s commit: %v", e.AgentID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
