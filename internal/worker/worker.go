// Package worker drives external coding-agent CLIs as subprocesses.
//
// A worker call is one-shot: build the argument vector from the protocol
// contract, run the binary to completion, hand back whatever it printed.
// Streaming, retries and interpretation of the output belong to callers.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/pkg/protocol"
)

// Request describes one worker invocation.
type Request struct {
	ParentSession string // session id the worker forks from
	Prompt        string
	Dir           string // working directory for the process ("" = inherit)
	IDOutputPath  string // side-channel file path; empty for planning calls
}

// Result is the captured outcome of one worker invocation. A non-zero exit
// code is reported here rather than as an error so callers can keep the
// captured output for diagnostics.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Invoker runs worker calls. The production implementation shells out to
// the worker CLI; tests substitute fakes.
type Invoker interface {
	// Invoke blocks until the worker exits or ctx is cancelled. The error
	// is reserved for failures to launch or abnormal termination; an
	// unhappy exit code comes back inside Result.
	Invoke(ctx context.Context, req Request) (*Result, error)

	// CommandLine reports the binary and argument vector Invoke would run,
	// for logging and artifact files.
	CommandLine(req Request) (string, []string)
}

// CLIWorker invokes a worker CLI binary.
type CLIWorker struct {
	Bin     string
	Model   string
	Sandbox string
}

// NewCLIWorker builds a CLIWorker from worker config, resolving the binary.
func NewCLIWorker(cfg config.WorkerConfig) *CLIWorker {
	return &CLIWorker{
		Bin:     ResolveBinary(cfg.Bin),
		Model:   cfg.Model,
		Sandbox: cfg.Sandbox,
	}
}

// CommandLine implements Invoker.
func (w *CLIWorker) CommandLine(req Request) (string, []string) {
	return w.Bin, protocol.ExecArgs(req.ParentSession, req.Prompt, w.Sandbox, w.Model, req.IDOutputPath)
}

// Invoke implements Invoker.
func (w *CLIWorker) Invoke(ctx context.Context, req Request) (*Result, error) {
	bin, args := w.CommandLine(req)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = req.Dir

	// Run the worker in its own process group so cancellation can kill the
	// whole tree; workers spawn sandbox children that hold pipes open.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
	cmd.WaitDelay = 5 * time.Second

	cmd.Env = debug.PropagatedEnv(os.Environ(), "worker")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	debug.LogKV("worker", "invoking worker",
		"bin", bin,
		"dir", req.Dir,
		"parent_session", req.ParentSession,
		"id_output", req.IDOutputPath,
	)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("worker %s: %w", bin, err)
		}
	}

	debug.LogKV("worker", "worker finished",
		"bin", bin,
		"exit_code", exitCode,
		"duration_ms", duration.Milliseconds(),
		"stdout_bytes", stdout.Len(),
		"stderr_bytes", stderr.Len(),
	)

	return &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Duration: duration,
	}, nil
}

// ResolveBinary picks the worker binary. Order: the configured value, the
// CODEX_BIN environment variable, the conventional npm global install
// location, finally "codex" from PATH.
func ResolveBinary(configured string) string {
	if v := strings.TrimSpace(configured); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CODEX_BIN")); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".npm-global", "bin", "codex")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return "codex"
}
