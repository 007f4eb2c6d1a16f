// Package orchestrator runs one fan-out round: plan an agent roster, give
// every agent an isolated worktree, run the workers concurrently, and record
// whatever survives. Per-agent failures never abort siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/debug"
	"github.com/agusx1211/swarmix/internal/eventq"
	"github.com/agusx1211/swarmix/internal/events"
	"github.com/agusx1211/swarmix/internal/executor"
	"github.com/agusx1211/swarmix/internal/hexid"
	"github.com/agusx1211/swarmix/internal/planner"
	"github.com/agusx1211/swarmix/internal/recording"
	"github.com/agusx1211/swarmix/internal/registry"
	"github.com/agusx1211/swarmix/internal/store"
	"github.com/agusx1211/swarmix/internal/worker"
	"github.com/agusx1211/swarmix/internal/worktree"
)

// RoundResult is everything a completed round produced, including the parts
// that failed or never started.
type RoundResult struct {
	RunID         string
	ParentSession string
	Agents        []executor.AgentResult
	Failures      []AgentFailure
	Skipped       []string
	StartedAt     time.Time
	FinishedAt    time.Time
	Cancelled     bool
}

// Orchestrator coordinates fan-out rounds against one repository.
type Orchestrator struct {
	store    *store.Store
	cfg      *config.Config
	repoRoot string
	registry *registry.Registry

	mu       sync.Mutex
	eventCh  chan any
	progress func(string)

	// Substituted by tests.
	newWorker   func() worker.Invoker
	newRecorder func(runID string) recording.Recorder
}

// New creates an Orchestrator over a repository and its store.
func New(s *store.Store, cfg *config.Config, repoRoot string) *Orchestrator {
	o := &Orchestrator{
		store:    s,
		cfg:      cfg,
		repoRoot: repoRoot,
		registry: registry.New(),
	}
	o.newWorker = func() worker.Invoker { return worker.NewCLIWorker(cfg.Worker) }
	o.newRecorder = func(runID string) recording.Recorder { return recording.NewStoreRecorder(s, runID) }
	return o
}

// Registry exposes the active-run table so control surfaces (CLI, control
// socket, web server) can inspect and cancel runs.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// SetEventCh sets the channel that receives progress messages. Sends are
// non-blocking; a slow consumer loses events, never stalls the round.
func (o *Orchestrator) SetEventCh(ch chan any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.eventCh = ch
}

// SetProgress installs a plain-text milestone sink for non-TUI callers.
func (o *Orchestrator) SetProgress(fn func(string)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = fn
}

func (o *Orchestrator) emit(msg any) {
	o.mu.Lock()
	ch := o.eventCh
	o.mu.Unlock()
	if ch == nil {
		return
	}
	if !eventq.Offer(ch, msg) {
		debug.LogKV("orch", "dropping event", "type", fmt.Sprintf("%T", msg))
	}
}

func (o *Orchestrator) progressf(runID, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	o.mu.Lock()
	fn := o.progress
	o.mu.Unlock()
	if fn != nil {
		fn(line)
	}
	o.emit(events.ProgressMsg{RunID: runID, Line: line})
}

// Run executes one full round for parentSession. It blocks until every
// agent has finished, failed, or been skipped, and returns the aggregate.
// A second Run for the same session while one is active fails with
// *registry.AlreadyRunningError.
func (o *Orchestrator) Run(ctx context.Context, parentSession, task string) (*RoundResult, error) {
	runID := hexid.New()

	guard, err := o.registry.Register(parentSession, runID)
	if err != nil {
		return nil, err
	}
	defer guard.Release()
	token := guard.Token()

	startedAt := time.Now().UTC()
	debug.LogKV("orch", "run started", "run_id", runID, "session", parentSession)
	o.emit(events.RunStartedMsg{
		RunID:         runID,
		ParentSession: parentSession,
		Task:          task,
		StartedAt:     startedAt,
	})

	if err := o.store.EnsureRoot(); err != nil {
		err = fmt.Errorf("preparing run root: %w", err)
		o.emit(events.RunFinishedMsg{RunID: runID, Err: err})
		return nil, err
	}

	inv := o.newWorker()

	o.progressf(runID, "run %s: planning agent roster", runID)
	pl := planner.New(inv, o.store.Root())
	agents, err := pl.GenerateAgents(ctx, parentSession, task)
	if err != nil {
		perr := &PlanningError{Err: err}
		o.emit(events.RunFinishedMsg{RunID: runID, Cancelled: token.Cancelled(), Err: perr})
		return nil, perr
	}

	infos := make([]events.AgentInfo, len(agents))
	for i, a := range agents {
		infos[i] = events.AgentInfo{ID: a.ID, Name: a.Name, Role: a.Role}
	}
	o.emit(events.PlanReadyMsg{RunID: runID, Agents: infos})
	o.progressf(runID, "run %s: %d agents planned", runID, len(agents))

	wm, err := worktree.NewManager(ctx, o.repoRoot, runID)
	if err != nil {
		werr := &WorktreeError{Err: err}
		o.emit(events.RunFinishedMsg{RunID: runID, Cancelled: token.Cancelled(), Err: werr})
		return nil, werr
	}
	wm.SetCommitIdentity(o.cfg.Commit.AuthorName, o.cfg.Commit.AuthorEmail)

	rec := o.newRecorder(runID)
	ex := executor.New(inv, rec, o.store.Root(), runID, parentSession)
	ex.OnSession = func(agentID, sessionID, rolloutPath string) {
		o.emit(events.AgentSessionMsg{
			RunID:       runID,
			AgentID:     agentID,
			SessionID:   sessionID,
			RolloutPath: rolloutPath,
		})
	}

	var (
		resMu    sync.Mutex
		results  []executor.AgentResult
		failures []AgentFailure
		skipped  []string
	)
	fail := func(agentID, stage string, err error) {
		resMu.Lock()
		failures = append(failures, AgentFailure{AgentID: agentID, Stage: stage, Err: err})
		resMu.Unlock()
		o.emit(events.AgentFailedMsg{RunID: runID, AgentID: agentID, Stage: stage, Err: err})
		o.progressf(runID, "run %s: agent %s failed (%s): %v", runID, agentID, stage, err)
	}
	skip := func(agentID string) {
		resMu.Lock()
		skipped = append(skipped, agentID)
		resMu.Unlock()
		o.emit(events.AgentSkippedMsg{RunID: runID, AgentID: agentID})
		o.progressf(runID, "run %s: agent %s skipped (cancelled)", runID, agentID)
	}

	var sem chan struct{}
	if n := o.cfg.Run.MaxParallel; n > 0 {
		sem = make(chan struct{}, n)
	}

	var wg sync.WaitGroup
	for _, ac := range agents {
		wg.Add(1)
		go func(ac planner.AgentConfig) {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}

			// Cancellation is cooperative: checked before each costly
			// step, never enforced on an in-flight worker.
			if token.Cancelled() || ctx.Err() != nil {
				skip(ac.ID)
				return
			}

			wt, err := wm.Create(ctx, ac.ID)
			if err != nil {
				fail(ac.ID, "worktree", &WorktreeError{AgentID: ac.ID, Err: err})
				return
			}
			o.emit(events.WorktreeReadyMsg{RunID: runID, AgentID: ac.ID, Branch: wt.Branch, Path: wt.Path})

			if token.Cancelled() || ctx.Err() != nil {
				skip(ac.ID)
				return
			}

			o.emit(events.AgentStartedMsg{RunID: runID, AgentID: ac.ID})
			o.progressf(runID, "run %s: agent %s (%s) started", runID, ac.ID, ac.Name)

			res, err := ex.Execute(ctx, ac, wt)
			if err != nil {
				fail(ac.ID, stageOf(err), err)
				return
			}

			resMu.Lock()
			results = append(results, *res)
			resMu.Unlock()
			o.emit(events.AgentFinishedMsg{
				RunID:      runID,
				AgentID:    res.AgentID,
				SessionID:  res.SessionID,
				CommitHash: res.CommitHash,
				Branch:     res.Branch,
			})
			o.progressf(runID, "run %s: agent %s done, commit %.8s on %s", runID, res.AgentID, res.CommitHash, res.Branch)
		}(ac)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].AgentID < results[j].AgentID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].AgentID < failures[j].AgentID })
	sort.Strings(skipped)

	finishedAt := time.Now().UTC()
	cancelled := token.Cancelled()

	record := &store.RoundRecord{
		RunID:         runID,
		ParentSession: parentSession,
		Task:          task,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Cancelled:     cancelled,
		Agents:        make([]store.AgentOutcome, len(results)),
		Failures:      make([]store.AgentFailureRecord, len(failures)),
		Skipped:       skipped,
	}
	for i, r := range results {
		record.Agents[i] = store.AgentOutcome{
			AgentID:     r.AgentID,
			Name:        r.Name,
			Role:        r.Role,
			SessionID:   r.SessionID,
			RolloutPath: r.RolloutPath,
			Branch:      r.Branch,
			CommitHash:  r.CommitHash,
		}
	}
	for i, f := range failures {
		record.Failures[i] = store.AgentFailureRecord{
			AgentID: f.AgentID,
			Stage:   f.Stage,
			Error:   f.Err.Error(),
		}
	}
	// The round already happened; losing the record is not worth failing it.
	if err := rec.RecordRound(record); err != nil {
		debug.LogKV("orch", "record round failed", "run_id", runID, "error", err.Error())
	}

	o.emit(events.RunFinishedMsg{
		RunID:     runID,
		Succeeded: len(results),
		Failed:    len(failures),
		Skipped:   len(skipped),
		Cancelled: cancelled,
	})
	o.progressf(runID, "run %s: finished, %d succeeded, %d failed, %d skipped",
		runID, len(results), len(failures), len(skipped))
	debug.LogKV("orch", "run finished",
		"run_id", runID,
		"succeeded", len(results),
		"failed", len(failures),
		"skipped", len(skipped),
		"cancelled", cancelled,
	)

	return &RoundResult{
		RunID:         runID,
		ParentSession: parentSession,
		Agents:        results,
		Failures:      failures,
		Skipped:       skipped,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		Cancelled:     cancelled,
	}, nil
}

// stageOf maps an executor error to its pipeline stage name.
func stageOf(err error) string {
	var (
		execErr   *executor.ExecError
		metaErr   *executor.MetadataError
		recordErr *executor.RecordError
		commitErr *executor.CommitError
	)
	switch {
	case errors.As(err, &metaErr):
		return "metadata"
	case errors.As(err, &recordErr):
		return "record"
	case errors.As(err, &commitErr):
		return "commit"
	case errors.As(err, &execErr):
		return "execute"
	default:
		return "execute"
	}
}
