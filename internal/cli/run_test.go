package cli

import (
	"errors"
	"testing"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/executor"
	"github.com/agusx1211/swarmix/internal/orchestrator"
)

func TestApplyRunFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addRunFlags(cmd)
	for flag, value := range map[string]string{
		"worker":       "/opt/bin/codex",
		"model":        "gpt-5-codex-low",
		"max-parallel": "3",
	} {
		if err := cmd.Flags().Set(flag, value); err != nil {
			t.Fatalf("set %s: %v", flag, err)
		}
	}

	cfg := config.Default()
	applyRunFlags(cfg, cmd)

	if cfg.Worker.Bin != "/opt/bin/codex" {
		t.Fatalf("worker bin = %q", cfg.Worker.Bin)
	}
	if cfg.Worker.Model != "gpt-5-codex-low" {
		t.Fatalf("model = %q", cfg.Worker.Model)
	}
	if cfg.Run.MaxParallel != 3 {
		t.Fatalf("max parallel = %d", cfg.Run.MaxParallel)
	}
	// Untouched flags keep the config's value.
	if cfg.Worker.Sandbox != config.DefaultSandbox {
		t.Fatalf("sandbox = %q, want default", cfg.Worker.Sandbox)
	}
}

func TestApplyRunFlagsLeavesConfigAlone(t *testing.T) {
	cmd := &cobra.Command{}
	addRunFlags(cmd)

	cfg := config.Default()
	cfg.Worker.Model = "from-file"
	cfg.Run.MaxParallel = 7
	applyRunFlags(cfg, cmd)

	if cfg.Worker.Model != "from-file" {
		t.Fatalf("model = %q, want from-file", cfg.Worker.Model)
	}
	if cfg.Run.MaxParallel != 7 {
		t.Fatalf("max parallel = %d, want 7", cfg.Run.MaxParallel)
	}
}

func TestRoundExitStatus(t *testing.T) {
	tests := []struct {
		name    string
		result  orchestrator.RoundResult
		wantErr bool
	}{
		{
			name:   "all succeeded",
			result: orchestrator.RoundResult{Agents: []executor.AgentResult{{AgentID: "01"}}},
		},
		{
			name: "partial failure still exits clean",
			result: orchestrator.RoundResult{
				Agents:   []executor.AgentResult{{AgentID: "01"}},
				Failures: []orchestrator.AgentFailure{{AgentID: "02", Stage: "execute", Err: errors.New("boom")}},
			},
		},
		{
			name: "every agent failed",
			result: orchestrator.RoundResult{
				Failures: []orchestrator.AgentFailure{{AgentID: "01", Stage: "worktree", Err: errors.New("boom")}},
			},
			wantErr: true,
		},
		{
			name:    "cancelled",
			result:  orchestrator.RoundResult{Cancelled: true},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := roundExitStatus(&tt.result)
			if (err != nil) != tt.wantErr {
				t.Fatalf("roundExitStatus() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunCommandFlagsExist(t *testing.T) {
	for _, name := range []string{"worker", "model", "sandbox", "max-parallel", "tui", "json"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Fatalf("run --%s flag missing", name)
		}
	}
}
