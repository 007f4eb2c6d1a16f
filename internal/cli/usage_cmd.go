package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/usage"
)

var usageCmd = &cobra.Command{
	Use:     "usage <run-id>",
	Aliases: []string{"tokens"},
	Short:   "Show token usage for a recorded round",
	Long: `Sum the token usage of every agent in a recorded round by parsing each
agent's rollout transcript. Agents whose transcript is missing or holds no
usage events are reported, not fatal.

Examples:
  swarmix usage a1b2c3d4
  swarmix usage a1b2c3d4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runUsageReport,
}

func init() {
	usageCmd.Flags().Bool("json", false, "Output as JSON")
	rootCmd.AddCommand(usageCmd)
}

func runUsageReport(cmd *cobra.Command, args []string) error {
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

	report := usage.CollectRound(usage.DefaultProvider(), rec)

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printHeader(fmt.Sprintf("Token Usage: Round %s", rec.RunID))
	fmt.Printf("  %s%-8s %-12s %12s %12s %12s %12s%s\n",
		ansiBold, "Agent", "Session", "Input", "Cached", "Output", "Total", ansiReset)
	for _, agent := range report.Agents {
		if agent.Err != "" {
			fmt.Printf("  %-8s %-12s %s%s%s\n",
				agent.AgentID, shortHash(agent.SessionID), ansiDim, agent.Err, ansiReset)
			continue
		}
		fmt.Printf("  %-8s %-12s %12s %12s %12s %12s\n",
			agent.AgentID,
			shortHash(agent.SessionID),
			formatTokens(agent.Totals.InputTokens),
			formatTokens(agent.Totals.CachedTokens),
			formatTokens(agent.Totals.OutputTokens),
			formatTokens(agent.Totals.TotalTokens),
		)
	}
	fmt.Printf("  %s%-8s %-12s %12s %12s %12s %12s%s\n",
		ansiBold, "total", "",
		formatTokens(report.Totals.InputTokens),
		formatTokens(report.Totals.CachedTokens),
		formatTokens(report.Totals.OutputTokens),
		formatTokens(report.Totals.TotalTokens),
		ansiReset)
	fmt.Println()
	return nil
}

// formatTokens renders a token count with thousands shortening.
func formatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 10_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
