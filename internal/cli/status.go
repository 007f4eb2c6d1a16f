package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active run and recent rounds",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, s, err := openRepoStore()
	if err != nil {
		return err
	}

	printHeader("Active Run")
	client := session.NewClient(s.Root())
	active, err := client.Status(cmd.Context())
	switch {
	case errors.Is(err, session.ErrNoActiveRun):
		fmt.Println(ansiDim + "  (none)" + ansiReset)
	case err != nil:
		return fmt.Errorf("querying control socket: %w", err)
	case len(active) == 0:
		fmt.Println(ansiDim + "  (none)" + ansiReset)
	default:
		for _, desc := range active {
			fmt.Printf("  %s%s%s  session %s  %s\n",
				ansiBoldYellow, desc.RunID, ansiReset, desc.SessionID,
				ansiYellow+"running"+ansiReset)
		}
	}

	// Live session pointers let the curious attach to an agent mid-round.
	if live, err := s.LoadLiveSessions(); err == nil && live != nil && len(live.Agents) > 0 {
		printHeader("Live Agent Sessions")
		ids := make([]string, 0, len(live.Agents))
		for agentID := range live.Agents {
			ids = append(ids, agentID)
		}
		sort.Strings(ids)
		for _, agentID := range ids {
			entry := live.Agents[agentID]
			fmt.Printf("  Agent %s: session=%s (%s)\n",
				agentID, shortHash(entry.SessionID), timeAgo(entry.StartedAt))
		}
	}

	return printRecentRounds(s, 5)
}
