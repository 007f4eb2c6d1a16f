package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/store"
)

var roundsCmd = &cobra.Command{
	Use:     "rounds",
	Aliases: []string{"history"},
	Short:   "List recorded rounds",
	Args:    cobra.NoArgs,
	RunE:    runRounds,
}

var roundsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one recorded round in full",
	Args:  cobra.ExactArgs(1),
	RunE:  runRoundsShow,
}

func init() {
	roundsCmd.Flags().Bool("json", false, "Output as JSON")
	roundsCmd.Flags().Int("limit", 20, "Maximum rounds to list (0 = all)")
	roundsShowCmd.Flags().Bool("json", false, "Output as JSON")
	roundsCmd.AddCommand(roundsShowCmd)
	rootCmd.AddCommand(roundsCmd)
}

func runRounds(cmd *cobra.Command, args []string) error {
	_, s, err := openRepoStore()
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	rounds, err := s.ListRounds()
	if err != nil {
		return err
	}

	if asJSON {
		// Newest first, like the human listing.
		out := make([]store.RoundRecord, 0, len(rounds))
		for i := len(rounds) - 1; i >= 0; i-- {
			out = append(out, rounds[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if limit <= 0 {
		limit = len(rounds)
	}
	return printRecentRounds(s, limit)
}

func runRoundsShow(cmd *cobra.Command, args []string) error {
	_, s, err := openRepoStore()
	if err != nil {
		return err
	}

	rec, err := s.GetRound(args[0])
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("round %q not found (see 'swarmix rounds')", args[0])
		}
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}

	printHeader(fmt.Sprintf("Round %s %s", rec.RunID, roundBadge(rec)))
	printField("Parent session", rec.ParentSession)
	if rec.Task != "" {
		printField("Task", truncate(firstLine(rec.Task), 72))
	}
	printField("Started", rec.StartedAt.Format(timeFormat))
	printField("Finished", rec.FinishedAt.Format(timeFormat))
	if !rec.StartedAt.IsZero() && !rec.FinishedAt.IsZero() {
		printField("Duration", rec.FinishedAt.Sub(rec.StartedAt).Round(timeRounding).String())
	}

	if len(rec.Agents) > 0 {
		printHeader("Agents")
		for _, agent := range rec.Agents {
			name := agent.Name
			if name == "" {
				name = "-"
			}
			fmt.Printf("  %sAgent %s%s  %-24s session=%s  commit=%s  %s\n",
				ansiBold, agent.AgentID, ansiReset,
				truncate(name, 24),
				shortHash(agent.SessionID),
				shortHash(agent.CommitHash),
				ansiDim+agent.Branch+ansiReset)
		}
	}
	if len(rec.Failures) > 0 {
		printHeader("Failures")
		for _, failure := range rec.Failures {
			fmt.Printf("  %sAgent %s%s  %s: %s\n",
				ansiBold, failure.AgentID, ansiReset,
				failure.Stage, ansiRed+failure.Error+ansiReset)
		}
	}
	if len(rec.Skipped) > 0 {
		printHeader("Skipped")
		for _, agentID := range rec.Skipped {
			fmt.Printf("  Agent %s\n", agentID)
		}
	}
	fmt.Println()
	return nil
}
