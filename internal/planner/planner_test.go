package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agusx1211/swarmix/internal/worker"
)

type fakeInvoker struct {
	res    *worker.Result
	err    error
	gotReq worker.Request
}

func (f *fakeInvoker) Invoke(ctx context.Context, req worker.Request) (*worker.Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeInvoker) CommandLine(req worker.Request) (string, []string) {
	return "codex", []string{"exec", "resume-clone", req.ParentSession, req.Prompt}
}

const goodPlan = `Thinking about the task...

` + "```json" + `
[
  {"id": "01", "name": "Architect", "role": "Design the system"},
  {"id": "02", "name": "Builder", "role": "Implement the system"}
]
` + "```" + `

Done.`

func TestGenerateAgents(t *testing.T) {
	dir := t.TempDir()
	inv := &fakeInvoker{res: &worker.Result{Stdout: []byte(goodPlan)}}
	p := New(inv, dir)

	agents, err := p.GenerateAgents(context.Background(), "sess-1", "build it")
	if err != nil {
		t.Fatalf("GenerateAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("len(agents) = %d, want 2", len(agents))
	}
	if agents[0].ID != "01" || agents[0].Name != "Architect" || agents[0].Role != "Design the system" {
		t.Errorf("agents[0] = %+v", agents[0])
	}

	// Planning requests never carry a side-channel path.
	if inv.gotReq.IDOutputPath != "" {
		t.Errorf("IDOutputPath = %q, want empty", inv.gotReq.IDOutputPath)
	}
	if inv.gotReq.ParentSession != "sess-1" {
		t.Errorf("ParentSession = %q", inv.gotReq.ParentSession)
	}
	if !strings.Contains(inv.gotReq.Prompt, "JSON array") {
		t.Error("prompt does not ask for a JSON array")
	}

	for _, name := range []string{"planner_command.sh", "planner_stdout.txt", "planner_stderr.txt"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}
	cmd, err := os.ReadFile(filepath.Join(dir, "planner_command.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(cmd), "#!/bin/bash") {
		t.Errorf("command artifact = %q", string(cmd)[:20])
	}
}

func TestGenerateAgentsToleratesExitCodeWithOutput(t *testing.T) {
	inv := &fakeInvoker{res: &worker.Result{
		Stdout:   []byte(goodPlan),
		Stderr:   []byte("stream warning: reconnected"),
		ExitCode: 1,
	}}
	p := New(inv, t.TempDir())

	agents, err := p.GenerateAgents(context.Background(), "sess-1", "task")
	if err != nil {
		t.Fatalf("GenerateAgents: %v", err)
	}
	if len(agents) != 2 {
		t.Errorf("len(agents) = %d, want 2", len(agents))
	}
}

func TestGenerateAgentsFailsWhenSilent(t *testing.T) {
	inv := &fakeInvoker{res: &worker.Result{
		Stderr:   []byte("fatal: session not found"),
		ExitCode: 2,
	}}
	p := New(inv, t.TempDir())

	_, err := p.GenerateAgents(context.Background(), "sess-1", "task")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "exit code 2") || !strings.Contains(err.Error(), "session not found") {
		t.Errorf("err = %v", err)
	}
}

func TestGenerateAgentsFailsOnEmptyOutput(t *testing.T) {
	inv := &fakeInvoker{res: &worker.Result{Stdout: []byte("  \n")}}
	p := New(inv, t.TempDir())

	if _, err := p.GenerateAgents(context.Background(), "sess-1", "task"); err == nil {
		t.Fatal("expected error for empty output")
	}
}

func TestGenerateAgentsInvokeError(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("binary not found")}
	p := New(inv, t.TempDir())

	if _, err := p.GenerateAgents(context.Background(), "sess-1", "task"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGenerateAgentsRejectsInvalidRoster(t *testing.T) {
	cases := map[string]string{
		"empty array":    `[]`,
		"id only":        `[{"id": "01"}]`,
		"missing role":   `[{"id": "01", "name": "A"}]`,
		"blank name":     `[{"id": "01", "name": "", "role": "r"}]`,
		"wrong type":     `[{"id": 1, "name": "A", "role": "r"}]`,
		"not an object":  `["architect"]`,
		"malformed json": `[{"id": "01",]`,
	}
	for label, plan := range cases {
		t.Run(label, func(t *testing.T) {
			inv := &fakeInvoker{res: &worker.Result{Stdout: []byte(plan)}}
			p := New(inv, t.TempDir())
			if _, err := p.GenerateAgents(context.Background(), "sess-1", "task"); err == nil {
				t.Errorf("plan %q passed validation", plan)
			}
		})
	}
}

func TestGenerateAgentsAcceptsOddIDs(t *testing.T) {
	// Non-sequential ids are logged but never rejected.
	plan := `[{"id": "07", "name": "A", "role": "r"}, {"id": "xx", "name": "B", "role": "s"}]`
	inv := &fakeInvoker{res: &worker.Result{Stdout: []byte(plan)}}
	p := New(inv, t.TempDir())

	agents, err := p.GenerateAgents(context.Background(), "sess-1", "task")
	if err != nil {
		t.Fatalf("GenerateAgents: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "07" || agents[1].ID != "xx" {
		t.Errorf("agents = %+v", agents)
	}
}

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		err  bool
	}{
		{
			name: "json fence",
			in:   "noise\n```json\n[{\"id\": \"01\"}]\n```\nmore noise",
			want: `[{"id": "01"}]`,
		},
		{
			name: "plain fence with language tag",
			in:   "```javascript\n[1, 2]\n```",
			want: `[1, 2]`,
		},
		{
			name: "plain fence no tag",
			in:   "```\n[3]\n```",
			want: `[3]`,
		},
		{
			name: "bare array in prose",
			in:   "Here you go: [ {\"id\": \"01\"} ] enjoy",
			want: `[ {"id": "01"} ]`,
		},
		{
			name: "first bracket to last bracket",
			in:   `[["nested"], ["arrays"]]`,
			want: `[["nested"], ["arrays"]]`,
		},
		{
			name: "no array",
			in:   "sorry, can't help",
			err:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONArray(tt.in)
			if tt.err {
				if err == nil {
					t.Fatalf("got %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONArray: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
