package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agusx1211/swarmix/internal/planner"
	"github.com/agusx1211/swarmix/internal/store"
	"github.com/agusx1211/swarmix/internal/worker"
	"github.com/agusx1211/swarmix/internal/worktree"
)

// fakeInvoker stands in for the worker CLI. It drops a file into the
// request's working directory and, unless told otherwise, writes session
// metadata to the side-channel path.
type fakeInvoker struct {
	exitCode     int
	stderr       string
	invokeErr    error
	skipMetadata bool
	badMetadata  bool
	skipOutput   bool

	gotReq worker.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, req worker.Request) (*worker.Result, error) {
	f.gotReq = req
	if f.invokeErr != nil {
		return nil, f.invokeErr
	}
	if f.exitCode != 0 {
		return &worker.Result{Stderr: []byte(f.stderr), ExitCode: f.exitCode}, nil
	}
	if !f.skipOutput {
		if err := os.WriteFile(filepath.Join(req.Dir, "work.txt"), []byte("agent output\n"), 0644); err != nil {
			return nil, err
		}
	}
	if !f.skipMetadata {
		body := `{"session_id":"sess-1234","rollout_path":"/tmp/rollout.jsonl"}`
		if f.badMetadata {
			body = `{"session_id":""}`
		}
		if err := os.WriteFile(req.IDOutputPath, []byte(body), 0644); err != nil {
			return nil, err
		}
	}
	return &worker.Result{Stdout: []byte("done"), ExitCode: 0}, nil
}

func (f *fakeInvoker) CommandLine(req worker.Request) (string, []string) {
	return "fake", nil
}

type fakeRecorder struct {
	err   error
	calls []string
}

func (f *fakeRecorder) RecordSessionStart(agentID, sessionID, rolloutPath string) error {
	f.calls = append(f.calls, fmt.Sprintf("%s/%s/%s", agentID, sessionID, rolloutPath))
	return f.err
}

func (f *fakeRecorder) RecordRound(*store.RoundRecord) error {
	return nil
}

func setup(t *testing.T, inv worker.Invoker, rec *fakeRecorder) (*Executor, *worktree.Manager, *worktree.AgentWorktree) {
	t.Helper()
	repo := initGitRepo(t)
	ctx := context.Background()

	mgr, err := worktree.NewManager(ctx, repo, "run1")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	wt, err := mgr.Create(ctx, "01")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	runRoot := filepath.Join(mgr.RepoRoot(), ".swarmix")
	ex := New(inv, rec, runRoot, "run1", "parent-sess")
	return ex, mgr, wt
}

func TestExecutePipeline(t *testing.T) {
	inv := &fakeInvoker{}
	rec := &fakeRecorder{}
	ex, mgr, wt := setup(t, inv, rec)

	var sawSession string
	ex.OnSession = func(agentID, sessionID, rolloutPath string) {
		sawSession = agentID + "/" + sessionID
	}

	cfg := planner.AgentConfig{ID: "01", Name: "Backend", Role: "APIs"}
	res, err := ex.Execute(context.Background(), cfg, wt)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.AgentID != "01" || res.Name != "Backend" || res.Role != "APIs" {
		t.Errorf("identity fields = %q/%q/%q", res.AgentID, res.Name, res.Role)
	}
	if res.SessionID != "sess-1234" {
		t.Errorf("SessionID = %q", res.SessionID)
	}
	if res.RolloutPath != "/tmp/rollout.jsonl" {
		t.Errorf("RolloutPath = %q", res.RolloutPath)
	}
	if res.Branch != wt.Branch {
		t.Errorf("Branch = %q, want %q", res.Branch, wt.Branch)
	}
	if res.CommitHash == mgr.StartHead() {
		t.Error("CommitHash is the fork point although the worker wrote a file")
	}

	// The worker ran in the agent's worktree with the resume lineage.
	if inv.gotReq.Dir != wt.Path {
		t.Errorf("worker Dir = %q, want %q", inv.gotReq.Dir, wt.Path)
	}
	if inv.gotReq.ParentSession != "parent-sess" {
		t.Errorf("worker ParentSession = %q", inv.gotReq.ParentSession)
	}
	if !strings.Contains(inv.gotReq.Prompt, "Backend") || !strings.Contains(inv.gotReq.Prompt, "APIs") {
		t.Errorf("role prompt missing identity: %q", inv.gotReq.Prompt)
	}

	if len(rec.calls) != 1 || rec.calls[0] != "01/sess-1234//tmp/rollout.jsonl" {
		t.Errorf("recorder calls = %v", rec.calls)
	}
	if sawSession != "01/sess-1234" {
		t.Errorf("OnSession saw %q", sawSession)
	}

	// The side-channel file is consumed, not left behind.
	if _, err := os.Stat(ex.SideFilePath("01")); !os.IsNotExist(err) {
		t.Error("side-channel metadata file survived a successful run")
	}

	// The commit holds the worker's output.
	show := gitOutput(t, mgr.RepoRoot(), "show", res.CommitHash+":work.txt")
	if strings.TrimSpace(show) != "agent output" {
		t.Errorf("committed content = %q", show)
	}
}

func TestExecuteNoChanges(t *testing.T) {
	inv := &fakeInvoker{skipOutput: true}
	rec := &fakeRecorder{}
	ex, mgr, wt := setup(t, inv, rec)

	res, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "Reviewer", Role: "Audit"}, wt)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.CommitHash != mgr.StartHead() {
		t.Errorf("CommitHash = %s, want fork point %s for a clean worktree", res.CommitHash, mgr.StartHead())
	}
}

func TestExecuteWorkerExitFailure(t *testing.T) {
	inv := &fakeInvoker{exitCode: 3, stderr: "model unavailable"}
	rec := &fakeRecorder{}
	ex, _, wt := setup(t, inv, rec)

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecError", err)
	}
	if execErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d", execErr.ExitCode)
	}
	if !strings.Contains(execErr.Error(), "model unavailable") {
		t.Errorf("error lost the stderr excerpt: %v", execErr)
	}
	if len(rec.calls) != 0 {
		t.Errorf("recorder called for a failed worker: %v", rec.calls)
	}
}

func TestExecuteWorkerLongStderrTruncated(t *testing.T) {
	inv := &fakeInvoker{exitCode: 1, stderr: strings.Repeat("x", 600)}
	ex, _, wt := setup(t, inv, &fakeRecorder{})

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecError", err)
	}
	if len([]rune(execErr.Stderr)) > 303 {
		t.Errorf("stderr excerpt not truncated: %d runes", len([]rune(execErr.Stderr)))
	}
}

func TestExecuteInvokeError(t *testing.T) {
	inv := &fakeInvoker{invokeErr: errors.New("binary not found")}
	ex, _, wt := setup(t, inv, &fakeRecorder{})

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecError", err)
	}
	if execErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a launch failure", execErr.ExitCode)
	}
}

func TestExecuteMissingMetadata(t *testing.T) {
	inv := &fakeInvoker{skipMetadata: true}
	ex, _, wt := setup(t, inv, &fakeRecorder{})

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var metaErr *MetadataError
	if !errors.As(err, &metaErr) {
		t.Fatalf("err = %v, want *MetadataError", err)
	}
	if metaErr.Path != ex.SideFilePath("01") {
		t.Errorf("Path = %q", metaErr.Path)
	}
}

func TestExecuteInvalidMetadata(t *testing.T) {
	inv := &fakeInvoker{badMetadata: true}
	ex, _, wt := setup(t, inv, &fakeRecorder{})

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var metaErr *MetadataError
	if !errors.As(err, &metaErr) {
		t.Fatalf("err = %v, want *MetadataError", err)
	}
}

func TestExecuteRecordFailureBlocksCommit(t *testing.T) {
	inv := &fakeInvoker{}
	rec := &fakeRecorder{err: errors.New("disk full")}
	ex, mgr, wt := setup(t, inv, rec)

	_, err := ex.Execute(context.Background(), planner.AgentConfig{ID: "01", Name: "A", Role: "r"}, wt)
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("err = %v, want *RecordError", err)
	}

	// The session record failed before the commit step, so the branch must
	// still sit on the fork point.
	branchHead := strings.TrimSpace(gitOutput(t, mgr.RepoRoot(), "rev-parse", wt.Branch))
	if branchHead != mgr.StartHead() {
		t.Errorf("branch advanced to %s despite record failure", branchHead)
	}
}

func TestSideFilePathIsAbsolute(t *testing.T) {
	ex := New(&fakeInvoker{}, &fakeRecorder{}, ".swarmix", "run1", "")
	if p := ex.SideFilePath("02"); !filepath.IsAbs(p) {
		t.Errorf("SideFilePath = %q, want absolute", p)
	}
}

func initGitRepo(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()

	runGit(t, repo, "init")
	runGit(t, repo, "checkout", "-b", "main")

	if err := os.WriteFile(filepath.Join(repo, "main.txt"), []byte("initial\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	runGit(t, repo, "add", "main.txt")
	runGitWithConfig(t, repo, []string{"user.name=Test", "user.email=test@example.com"}, "commit", "-m", "initial commit")
	return repo
}

func gitOutput(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, string(out))
	}
	return string(out)
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	_ = gitOutput(t, dir, args...)
}

func runGitWithConfig(t *testing.T, dir string, config []string, args ...string) {
	t.Helper()
	fullArgs := make([]string, 0, len(config)*2+len(args))
	for _, kv := range config {
		fullArgs = append(fullArgs, "-c", kv)
	}
	fullArgs = append(fullArgs, args...)
	runGit(t, dir, fullArgs...)
}
