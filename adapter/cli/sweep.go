package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a reconciliation pass now",
	Long: `Run one reconciliation pass over stale pending payments instead of
waiting for the next scheduled sweep.

Examples:
  tutorhive sweep`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := GetApp()
		if app == nil || app.Sweeper == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Sweeping requires database and payment processor connections.")
			return nil
		}

		summary, err := app.Sweeper.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Sweep complete: checked %d, fixed %d, errors %d\n",
			summary.Checked, summary.Fixed, len(summary.Errors))
		for _, item := range summary.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", item.BookingID, item.Err)
		}

		return nil
	},
}

func init() {
	AddCommand(sweepCmd)
}
