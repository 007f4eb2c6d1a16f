package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/session"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the active run",
	Long: `Signal the repository's active run to stop. Agents that already started
keep running until they notice the cancellation; agents that have not
started yet are skipped.

Examples:
  swarmix cancel                   # cancel every active run
  swarmix cancel --session <id>    # cancel the run for one parent session`,
	Args: cobra.NoArgs,
	RunE: runCancel,
}

func init() {
	cancelCmd.Flags().String("session", "", "Cancel only the run owned by this parent session")
	cancelCmd.Flags().Bool("all", false, "Cancel every active run (the default)")
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	all, _ := cmd.Flags().GetBool("all")
	if sessionID != "" && all {
		return fmt.Errorf("--session and --all cannot be used together")
	}

	_, s, err := openRepoStore()
	if err != nil {
		return err
	}

	client := session.NewClient(s.Root())
	ctx := cmd.Context()

	if sessionID != "" {
		desc, err := client.Cancel(ctx, sessionID)
		if err != nil {
			return cancelError(err)
		}
		fmt.Printf("Cancelled run %s%s%s (session %s)\n", ansiBold, desc.RunID, ansiReset, desc.SessionID)
		return nil
	}

	cancelled, err := client.CancelAll(ctx)
	if err != nil {
		return cancelError(err)
	}
	if len(cancelled) == 0 {
		fmt.Println(ansiDim + "Nothing to cancel." + ansiReset)
		return nil
	}
	for _, desc := range cancelled {
		fmt.Printf("Cancelled run %s%s%s (session %s)\n", ansiBold, desc.RunID, ansiReset, desc.SessionID)
	}
	return nil
}

func cancelError(err error) error {
	if errors.Is(err, session.ErrNoActiveRun) {
		return fmt.Errorf("no active run in this repository")
	}
	return err
}
