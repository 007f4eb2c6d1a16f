package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/eventq"
	"github.com/agusx1211/swarmix/internal/executor"
	"github.com/agusx1211/swarmix/internal/orchestrator"
	"github.com/agusx1211/swarmix/internal/pushover"
	"github.com/agusx1211/swarmix/internal/runtui"
	"github.com/agusx1211/swarmix/internal/session"
)

var runCmd = &cobra.Command{
	Use:     "run <parent-session> [task...]",
	Aliases: []string{"round"},
	Short:   "Run one round of agents against the repository",
	Long: `Run one fan-out round: a planner designs a roster of specialist agents
for the task, each agent works in its own git worktree cloned from the
parent session, and every result is committed onto a per-agent branch.

The task may be omitted, in which case the planner works purely from the
parent session's conversation history.

Examples:
  swarmix run 0199beb3-4c99-78a2-a322-516293137539 fix the flaky auth tests
  swarmix run $SESSION --model gpt-5-codex-high --max-parallel 4
  swarmix run $SESSION --json refactor the parser   # machine-readable result`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRound,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("worker", "", "Worker binary override (name or path)")
	cmd.Flags().String("model", "", "Model override passed to the worker")
	cmd.Flags().String("sandbox", "", "Sandbox mode override passed to the worker")
	cmd.Flags().Int("max-parallel", 0, "Concurrent agent cap (0 = unlimited)")
	cmd.Flags().Bool("tui", false, "Show the live dashboard (default when stdout is a terminal)")
	cmd.Flags().Bool("json", false, "Print the round result as JSON")
}

func runRound(cmd *cobra.Command, args []string) error {
	parentSession := strings.TrimSpace(args[0])
	if parentSession == "" {
		return fmt.Errorf("parent session id is required")
	}
	task := strings.TrimSpace(strings.Join(args[1:], " "))

	repoRoot, s, err := openRepoStore()
	if err != nil {
		return err
	}
	if err := s.EnsureRoot(); err != nil {
		return err
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return err
	}
	applyRunFlags(cfg, cmd)

	asJSON, _ := cmd.Flags().GetBool("json")
	useTUI := isatty.IsTerminal(os.Stdout.Fd())
	if cmd.Flags().Changed("tui") {
		useTUI, _ = cmd.Flags().GetBool("tui")
	}
	if asJSON {
		useTUI = false
	}

	orch := orchestrator.New(s, cfg, repoRoot)

	// The control socket is what makes 'swarmix cancel', 'swarmix status'
	// and the web observer work while this round runs. Losing it degrades
	// those surfaces but never blocks the round.
	ctrl := session.NewControlServer(orch.Registry(), s.Root())
	if err := ctrl.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "%sWarning: control socket unavailable: %v%s\n", ansiYellow, err, ansiReset)
		ctrl = nil
	} else {
		defer ctrl.Close()
	}
	publish := func(ev any) {
		if ctrl != nil {
			ctrl.Publish(ev)
		}
	}

	debug.LogKV("cli.run", "starting round",
		"parent_session", parentSession,
		"task_len", len(task),
		"tui", useTUI,
		"worker", cfg.Worker.Bin,
		"model", cfg.Worker.Model,
	)

	var (
		result *orchestrator.RoundResult
		runErr error
	)
	if useTUI {
		result, runErr = runtui.Run(runtui.RunConfig{
			Orchestrator:  orch,
			ParentSession: parentSession,
			Task:          task,
			RepoName:      filepath.Base(repoRoot),
			OnEvent:       publish,
		})
	} else {
		result, runErr = runRoundPlain(cmd.Context(), orch, parentSession, task, publish, !asJSON)
	}

	if result != nil {
		notifyRoundFinished(cfg, task, result)
	}
	if runErr != nil {
		return runErr
	}
	if result == nil {
		return fmt.Errorf("round produced no result")
	}

	if asJSON {
		return printRoundJSON(result)
	}
	printRoundSummary(result)
	return roundExitStatus(result)
}

// runRoundPlain executes the round without the dashboard, printing progress
// lines as they happen. First interrupt cancels the round cooperatively,
// second one abandons it.
func runRoundPlain(ctx context.Context, orch *orchestrator.Orchestrator, parentSession, task string, publish func(any), printProgress bool) (*orchestrator.RoundResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if printProgress {
		orch.SetProgress(func(line string) { fmt.Println(line) })
	}

	evCh := make(chan any, 256)
	orch.SetEventCh(evCh)
	drained := eventq.Bridge(evCh, nil, publish)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(os.Stderr, ansiBoldYellow+"Cancelling run... (interrupt again to abandon)"+ansiReset)
		orch.Registry().CancelAll()
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := orch.Run(ctx, parentSession, task)
	close(evCh)
	<-drained
	return result, err
}

// applyRunFlags lays explicit command-line flags over the loaded config.
func applyRunFlags(cfg *config.Config, cmd *cobra.Command) {
	if cmd.Flags().Changed("worker") {
		cfg.Worker.Bin, _ = cmd.Flags().GetString("worker")
	}
	if cmd.Flags().Changed("model") {
		cfg.Worker.Model, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("sandbox") {
		cfg.Worker.Sandbox, _ = cmd.Flags().GetString("sandbox")
	}
	if cmd.Flags().Changed("max-parallel") {
		if n, _ := cmd.Flags().GetInt("max-parallel"); n >= 0 {
			cfg.Run.MaxParallel = n
		}
	}
}

func printRoundSummary(result *orchestrator.RoundResult) {
	printHeader(fmt.Sprintf("Round %s", result.RunID))

	for _, agent := range result.Agents {
		fmt.Printf("  Agent %s: session=%s, commit=%s\n",
			agent.AgentID, shortHash(agent.SessionID), shortHash(agent.CommitHash))
	}
	for _, failure := range result.Failures {
		fmt.Printf("  Agent %s: %sfailed (%s): %v%s\n",
			failure.AgentID, ansiRed, failure.Stage, failure.Err, ansiReset)
	}
	for _, agentID := range result.Skipped {
		fmt.Printf("  Agent %s: %sskipped%s\n", agentID, ansiDim, ansiReset)
	}

	state := ansiBoldGreen + "finished" + ansiReset
	if result.Cancelled {
		state = ansiBoldYellow + "cancelled" + ansiReset
	} else if len(result.Failures) > 0 {
		state = ansiBoldRed + "finished with failures" + ansiReset
	}
	fmt.Printf("\n  Round %s: %d succeeded, %d failed, %d skipped (%s)\n\n",
		state, len(result.Agents), len(result.Failures), len(result.Skipped),
		result.FinishedAt.Sub(result.StartedAt).Round(timeRounding))
}

// roundExitStatus turns a completed round into the process exit state.
func roundExitStatus(result *orchestrator.RoundResult) error {
	if result.Cancelled {
		return fmt.Errorf("run cancelled")
	}
	if len(result.Agents) == 0 && len(result.Failures) > 0 {
		return fmt.Errorf("all %d agents failed", len(result.Failures))
	}
	return nil
}

func printRoundJSON(result *orchestrator.RoundResult) error {
	type failureJSON struct {
		AgentID string `json:"agent_id"`
		Stage   string `json:"stage"`
		Error   string `json:"error"`
	}
	out := struct {
		RunID         string                 `json:"run_id"`
		ParentSession string                 `json:"parent_session"`
		Agents        []executor.AgentResult `json:"agents"`
		Failures      []failureJSON          `json:"failures,omitempty"`
		Skipped       []string               `json:"skipped,omitempty"`
		Cancelled     bool                   `json:"cancelled"`
		StartedAt     string                 `json:"started_at"`
		FinishedAt    string                 `json:"finished_at"`
	}{
		RunID:         result.RunID,
		ParentSession: result.ParentSession,
		Agents:        result.Agents,
		Skipped:       result.Skipped,
		Cancelled:     result.Cancelled,
		StartedAt:     result.StartedAt.Format(timeFormat),
		FinishedAt:    result.FinishedAt.Format(timeFormat),
	}
	for _, f := range result.Failures {
		out.Failures = append(out.Failures, failureJSON{
			AgentID: f.AgentID,
			Stage:   f.Stage,
			Error:   f.Err.Error(),
		})
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// notifyRoundFinished fires the configured push notification. Best effort:
// a broken notification never changes the round's outcome.
func notifyRoundFinished(cfg *config.Config, task string, result *orchestrator.RoundResult) {
	if !pushover.Configured(&cfg.Pushover) {
		return
	}
	err := pushover.NotifyRoundFinished(&cfg.Pushover, pushover.RoundSummary{
		RunID:     result.RunID,
		Task:      task,
		Succeeded: len(result.Agents),
		Failed:    len(result.Failures),
		Skipped:   len(result.Skipped),
		Cancelled: result.Cancelled,
	})
	if err != nil {
		debug.LogKV("cli.run", "pushover notification failed", "error", err.Error())
	}
}
