// Package executor runs one planned agent through its full pipeline:
// worker subprocess in the agent's worktree, session metadata recovery,
// durable session record, round commit.
//
// The session record is written before the commit on purpose. A crash
// between the two loses a commit hash but never a session pointer, and the
// session is what lets a user resume or inspect the agent's conversation.
package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/planner"
	"github.com/agusx1211/swarmix/internal/prompt"
	"github.com/agusx1211/swarmix/internal/recording"
	"github.com/agusx1211/swarmix/internal/worker"
	"github.com/agusx1211/swarmix/internal/worktree"
	"github.com/agusx1211/swarmix/pkg/protocol"
)

// AgentResult is one agent's completed pipeline.
type AgentResult struct {
	AgentID     string `json:"agent_id"`
	Name        string `json:"name,omitempty"`
	Role        string `json:"role,omitempty"`
	SessionID   string `json:"session_id"`
	RolloutPath string `json:"rollout_path,omitempty"`
	Branch      string `json:"branch"`
	CommitHash  string `json:"commit_hash"`
}

// Executor drives agent pipelines for a single run.
type Executor struct {
	worker        worker.Invoker
	recorder      recording.Recorder
	runRoot       string // absolute .swarmix directory of the main repository
	runID         string
	parentSession string

	// OnSession, when set, fires as soon as an agent's session metadata is
	// recovered, before the agent commits.
	OnSession func(agentID, sessionID, rolloutPath string)
}

// New builds an executor for one run. runRoot is the repository's .swarmix
// directory; it is resolved to an absolute path because workers run with a
// different working directory and must still find their side-channel file.
func New(w worker.Invoker, rec recording.Recorder, runRoot, runID, parentSession string) *Executor {
	if abs, err := filepath.Abs(runRoot); err == nil {
		runRoot = abs
	}
	return &Executor{
		worker:        w,
		recorder:      rec,
		runRoot:       runRoot,
		runID:         runID,
		parentSession: parentSession,
	}
}

// SideFilePath returns the side-channel metadata path for one agent.
func (e *Executor) SideFilePath(agentID string) string {
	return filepath.Join(e.runRoot, fmt.Sprintf("agent-%s-%s-session.json", e.runID, agentID))
}

// Execute runs cfg's worker inside wt and returns the completed result.
// Each failure is typed by pipeline stage so callers can classify it.
func (e *Executor) Execute(ctx context.Context, cfg planner.AgentConfig, wt *worktree.AgentWorktree) (*AgentResult, error) {
	idPath := e.SideFilePath(cfg.ID)

	res, err := e.worker.Invoke(ctx, worker.Request{
		ParentSession: e.parentSession,
		Prompt:        prompt.Role(cfg.Name, cfg.Role),
		Dir:           wt.Path,
		IDOutputPath:  idPath,
	})
	if err != nil {
		return nil, &ExecError{AgentID: cfg.ID, ExitCode: -1, Stderr: err.Error()}
	}
	if res.ExitCode != 0 {
		debug.LogKV("executor", "worker failed",
			"agent_id", cfg.ID,
			"exit_code", res.ExitCode,
			"stderr", excerpt(string(res.Stderr), 500),
			"stdout", excerpt(string(res.Stdout), 200),
		)
		return nil, &ExecError{
			AgentID:  cfg.ID,
			ExitCode: res.ExitCode,
			Stderr:   excerpt(string(res.Stderr), 300),
		}
	}

	data, err := os.ReadFile(idPath)
	if err != nil {
		return nil, &MetadataError{AgentID: cfg.ID, Path: idPath, Err: err}
	}
	meta, err := protocol.ParseSessionMetadata(data)
	if err != nil {
		return nil, &MetadataError{AgentID: cfg.ID, Path: idPath, Err: err}
	}

	debug.LogKV("executor", "session recovered",
		"agent_id", cfg.ID,
		"session_id", meta.SessionID,
		"rollout_path", meta.RolloutPath,
	)

	if err := e.recorder.RecordSessionStart(cfg.ID, meta.SessionID, meta.RolloutPath); err != nil {
		return nil, &RecordError{AgentID: cfg.ID, Err: err}
	}
	if e.OnSession != nil {
		e.OnSession(cfg.ID, meta.SessionID, meta.RolloutPath)
	}

	// The side file has served its purpose; leftovers would shadow the
	// next run's metadata for the same agent id.
	os.Remove(idPath)

	commit, err := wt.AutoCommit(ctx)
	if err != nil {
		return nil, &CommitError{AgentID: cfg.ID, Err: err}
	}

	return &AgentResult{
		AgentID:     cfg.ID,
		Name:        cfg.Name,
		Role:        cfg.Role,
		SessionID:   meta.SessionID,
		RolloutPath: meta.RolloutPath,
		Branch:      wt.Branch,
		CommitHash:  commit,
	}, nil
}

func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
