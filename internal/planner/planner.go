// Package planner produces the agent roster for a fan-out round by asking
// a worker, forked from the parent conversation, to design it.
//
// Worker CLIs print status noise around the payload, so the plan is pulled
// out of stdout in stages: a ```json fence, then any ``` fence, then the
// outermost bracketed array. The raw command and output are kept as files
// under .swarmix/ for inspection; each planning call overwrites them.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/prompt"
	"github.com/agusx1211/swarmix/internal/worker"
)

// AgentConfig is one planned agent role.
type AgentConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Artifact files, overwritten on every planning call.
const (
	commandFile = "planner_command.sh"
	stdoutFile  = "planner_stdout.txt"
	stderrFile  = "planner_stderr.txt"
)

const excerptLen = 500

// rosterSchema constrains an extracted plan: a non-empty array of objects,
// each carrying non-empty id, name and role strings.
const rosterSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["id", "name", "role"],
    "properties": {
      "id": {"type": "string", "minLength": 1},
      "name": {"type": "string", "minLength": 1},
      "role": {"type": "string", "minLength": 1}
    }
  }
}`

var rosterValidator = jsonschema.MustCompileString("roster.json", rosterSchema)

// Planner asks a worker to design the agent roster.
type Planner struct {
	worker worker.Invoker
	artDir string // directory for artifact files, normally the .swarmix root
}

// New builds a planner that saves its artifacts under artifactsDir.
func New(w worker.Invoker, artifactsDir string) *Planner {
	return &Planner{worker: w, artDir: artifactsDir}
}

// GenerateAgents runs one planning round trip against the parent session
// and returns the validated roster.
//
// Workers often exit non-zero after printing a usable plan, so a bad exit
// code alone is not fatal; only an empty stdout is.
func (p *Planner) GenerateAgents(ctx context.Context, parentSession, task string) ([]AgentConfig, error) {
	req := worker.Request{
		ParentSession: parentSession,
		Prompt:        prompt.Plan(task),
	}

	p.saveCommand(req)

	res, err := p.worker.Invoke(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("planning worker: %w", err)
	}
	p.saveOutput(res)

	stdout := string(res.Stdout)
	if strings.TrimSpace(stdout) == "" {
		if res.ExitCode != 0 {
			return nil, fmt.Errorf("planning worker failed with exit code %d: %s",
				res.ExitCode, excerpt(string(res.Stderr)))
		}
		return nil, fmt.Errorf("planning worker produced no output; stderr: %s",
			excerpt(string(res.Stderr)))
	}

	jsonStr, err := ExtractJSONArray(stdout)
	if err != nil {
		return nil, fmt.Errorf("extracting plan (full output in %s): %w; output starts: %s",
			filepath.Join(p.artDir, stdoutFile), err, excerpt(stdout))
	}

	var raw any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parsing plan: %w; extracted: %s", err, excerpt(jsonStr))
	}
	if err := rosterValidator.Validate(raw); err != nil {
		return nil, fmt.Errorf("plan failed validation: %w", err)
	}

	var agents []AgentConfig
	if err := json.Unmarshal([]byte(jsonStr), &agents); err != nil {
		return nil, fmt.Errorf("parsing plan: %w; extracted: %s", err, excerpt(jsonStr))
	}

	// Sequential ids are a convention, not a contract. Log drift and move on.
	for i, a := range agents {
		expected := fmt.Sprintf("%02d", i+1)
		if a.ID != expected {
			debug.LogKV("planner", "unexpected agent id", "index", i, "id", a.ID, "expected", expected)
		}
	}

	debug.LogKV("planner", "roster ready", "agents", len(agents), "exit_code", res.ExitCode)
	return agents, nil
}

// ExtractJSONArray pulls a JSON array out of worker output. It tries a
// ```json fence, then any ``` fence (skipping the language tag on the
// opening line), then the span from the first '[' to the last ']'.
func ExtractJSONArray(text string) (string, error) {
	if start := strings.Index(text, "```json"); start >= 0 {
		rest := text[start+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.Index(rest, "\n"); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), nil
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		return strings.TrimSpace(text[start : end+1]), nil
	}

	return "", errors.New("no JSON array found in output")
}

func (p *Planner) saveCommand(req worker.Request) {
	bin, args := p.worker.CommandLine(req)

	// The prompt is the final argument; quote it so the file is runnable.
	quoted := ""
	if len(args) > 0 {
		quoted = `"` + strings.ReplaceAll(args[len(args)-1], `"`, `\"`) + `"`
		args = args[:len(args)-1]
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "# Planning command executed at %s\n\n", time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(bin)
	for _, a := range args {
		b.WriteString(" \\\n  " + a)
	}
	if quoted != "" {
		b.WriteString(" \\\n  " + quoted)
	}
	b.WriteString("\n")

	p.saveArtifact(commandFile, []byte(b.String()))
}

func (p *Planner) saveOutput(res *worker.Result) {
	p.saveArtifact(stdoutFile, res.Stdout)
	p.saveArtifact(stderrFile, res.Stderr)
}

// saveArtifact writes best-effort; a failed artifact never fails planning.
func (p *Planner) saveArtifact(name string, data []byte) {
	if p.artDir == "" {
		return
	}
	if err := os.MkdirAll(p.artDir, 0755); err != nil {
		debug.LogKV("planner", "artifact dir failed", "dir", p.artDir, "error", err)
		return
	}
	if err := os.WriteFile(filepath.Join(p.artDir, name), data, 0644); err != nil {
		debug.LogKV("planner", "artifact write failed", "file", name, "error", err)
	}
}

func excerpt(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= excerptLen {
		return s
	}
	return string(r[:excerptLen]) + "..."
}
