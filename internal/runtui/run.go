package runtui

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/agusx1211/swarmix/internal/eventq"
	"github.com/agusx1211/swarmix/internal/orchestrator"
)

// RunConfig holds everything needed to launch the run dashboard.
type RunConfig struct {
	Orchestrator  *orchestrator.Orchestrator
	ParentSession string
	Task          string
	RepoName      string

	// OnEvent, when set, observes every round event before the dashboard
	// consumes it. The control socket publisher hooks in here.
	OnEvent func(any)
}

// Run launches the dashboard and executes one round concurrently. It returns
// the round result even when the user quit the dashboard early.
func Run(cfg RunConfig) (*orchestrator.RoundResult, error) {
	orchCh := make(chan any, 256)
	uiCh := make(chan any, 256)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg.Orchestrator.SetEventCh(orchCh)
	stop := func() { cfg.Orchestrator.Registry().CancelAll() }

	model := NewModel(cfg.RepoName, cfg.Task, uiCh, stop)
	p := tea.NewProgram(model, tea.WithAltScreen())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		stop()
	}()

	// Tee round events to the observer, then to the dashboard.
	bridged := eventq.Bridge(orchCh, uiCh, cfg.OnEvent)

	var (
		result *orchestrator.RoundResult
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = cfg.Orchestrator.Run(ctx, cfg.ParentSession, cfg.Task)
		close(orchCh)
	}()

	_, uiErr := p.Run()
	// Dashboard exited first: hard-stop whatever is still running and drain
	// the events it will no longer consume.
	cancel()
	go func() {
		for range uiCh {
		}
	}()
	<-done
	<-bridged
	if uiErr != nil {
		return result, uiErr
	}
	return result, runErr
}
