package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/buildinfo"
	"github.com/agusx1211/swarmix/internal/debug"
)

// ANSI escapes for one-shot command output. The live dashboard styles its
// output through lipgloss instead.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBlue   = "\033[34m"
	ansiCyan   = "\033[36m"
	ansiWhite  = "\033[37m"

	ansiBoldRed    = "\033[1;31m"
	ansiBoldGreen  = "\033[1;32m"
	ansiBoldYellow = "\033[1;33m"
	ansiBoldCyan   = "\033[1;36m"
	ansiBoldWhite  = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "swarmix",
	Short: "Fan out a swarm of coding agents over one repository",
	Long: ansiBold + `
  ______      ____ _ _________ ___  (_)  __
 / ___/ | /| / / _` + "`" + ` / ___/ __ ` + "`" + `__ \/ / |/_/
(__  )| |/ |/ / /_/ / /  / / / / / / />  <
/____/ |__/|__/\__,_/_/  /_/ /_/ /_/_/_/|_|` + ansiReset + `

  ` + ansiBoldCyan + `Swarm round orchestrator` + ansiReset + ` v` + buildinfo.Current().Version + `

  swarmix plans a roster of agents for a task, runs each one in its own
  git worktree cloned from a parent session, and commits whatever each
  agent produced onto its own branch. One invocation is one round.

` + ansiBold + `Quick Start:` + ansiReset + `
  swarmix run <parent-session> fix the flaky auth tests
  swarmix status                  Active run and recent rounds
  swarmix rounds                  Recorded round history
  swarmix web                     Browser dashboard for a running round

` + ansiBold + `Learn More:` + ansiReset + `
  https://github.com/agusx1211/swarmix`,

	RunE: func(cmd *cobra.Command, args []string) error {
		// With no subcommand: brief round history if this repo has one,
		// help otherwise.
		repoRoot, err := resolveRepoRoot()
		if err != nil {
			return cmd.Help()
		}
		s, err := openStore(repoRoot)
		if err != nil || !s.Exists() {
			return cmd.Help()
		}
		return printRecentRounds(s, 5)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.swarmix/debug/")
	rootCmd.PersistentPreRunE = initDebugLogging
}

// initDebugLogging turns the debug logger on when the --debug flag or the
// environment asks for it.
func initDebugLogging(cmd *cobra.Command, args []string) error {
	if on, _ := cmd.Flags().GetBool("debug"); !on && !debug.ShouldEnableFromEnv() {
		return nil
	}

	logPath, err := debug.Init()
	if err != nil {
		return fmt.Errorf("enabling debug log: %w", err)
	}
	fmt.Fprintf(os.Stderr, "%s[debug]%s writing to %s\n", ansiDim, ansiReset, logPath)

	bi := buildinfo.Current()
	debug.LogKV("cli", "swarmix starting",
		"version", bi.Version,
		"commit", bi.CommitHash,
		"built", bi.BuildDate,
		"pid", os.Getpid(),
		"command", cmd.Name(),
		"argv", args,
	)
	return nil
}

// Execute dispatches the CLI and owns the process exit code.
func Execute() {
	defer debug.Close()

	err := rootCmd.Execute()
	if err == nil {
		debug.Log("cli", "clean exit")
		return
	}
	debug.Logf("cli", "command failed: %v", err)
	fmt.Fprintf(os.Stderr, "%sError: %v%s\n", ansiRed, err, ansiReset)
	os.Exit(1)
}
