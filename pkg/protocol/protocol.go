// Package protocol defines the contract between swarmix and worker processes.
//
// A worker is an external coding-agent CLI driven as a subprocess. swarmix
// reaches it only through its command line and one side-channel file, so a
// worker can be swapped for a stub in tests. The invocation shape is:
//
//	<worker> exec --print-rollout-path --skip-git-repo-check \
//	    [--id-output=<path>] --sandbox <mode> --model <name> \
//	    resume-clone <parent_session> <prompt>
//
// Planning calls omit --id-output and read the plan from stdout. Agent
// execution calls pass --id-output; before exiting zero the worker must
// write a JSON object with its new session id and transcript path to that
// file. Everything else the worker prints is informational.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Subcommand and mode tokens of the worker CLI.
const (
	ExecCommand     = "exec"
	ResumeCloneMode = "resume-clone"
)

// Flags understood by the worker CLI.
const (
	FlagPrintRolloutPath = "--print-rollout-path"
	FlagSkipGitRepoCheck = "--skip-git-repo-check"
	FlagIDOutput         = "--id-output"
	FlagSandbox          = "--sandbox"
	FlagModel            = "--model"
)

// SessionMetadata is the side-channel payload a worker writes to the
// --id-output path: the new child session forked from the parent
// conversation and the JSONL transcript (rollout) backing it.
type SessionMetadata struct {
	SessionID   string `json:"session_id"`
	RolloutPath string `json:"rollout_path"`
}

// ParseSessionMetadata decodes a side-channel file's contents and verifies
// both required fields are present and non-blank. The field name of the
// first missing value is reported so callers can surface it.
func ParseSessionMetadata(data []byte) (SessionMetadata, error) {
	var meta SessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return SessionMetadata{}, fmt.Errorf("parse session metadata: %w", err)
	}
	if strings.TrimSpace(meta.SessionID) == "" {
		return SessionMetadata{}, fmt.Errorf("session metadata: missing session_id")
	}
	if strings.TrimSpace(meta.RolloutPath) == "" {
		return SessionMetadata{}, fmt.Errorf("session metadata: missing rollout_path")
	}
	return meta, nil
}

// ExecArgs assembles the argument vector for one worker invocation.
// idOutputPath is empty for planning calls. The prompt is always the final
// argument so multi-line prompts never interact with flag parsing.
func ExecArgs(parentSession, prompt, sandbox, model, idOutputPath string) []string {
	args := []string{ExecCommand, FlagPrintRolloutPath, FlagSkipGitRepoCheck}
	if idOutputPath != "" {
		args = append(args, FlagIDOutput+"="+idOutputPath)
	}
	args = append(args,
		FlagSandbox, sandbox,
		FlagModel, model,
		ResumeCloneMode, parentSession,
		prompt,
	)
	return args
}
