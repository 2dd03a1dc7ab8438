package pass

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tutorhive/tutorhive/adapter/cli"
	"github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
)

var (
	passPlan string
	passDays int
)

var createCmd = &cobra.Command{
	Use:   "create [user-id]",
	Short: "Create a manual pass",
	Long: `Grant a user access for a number of days without a purchase,
for support cases, promotions, or goodwill.

Examples:
  tutorhive pass create 7c9e6679-7425-40de-944b-e07fc1f90ae7 --plan premium --days 14`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.CreatePassHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Creating passes requires a database connection.")
			return nil
		}

		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}

		result, err := app.CreatePassHandler.Handle(cmd.Context(), commands.CreatePassCommand{
			UserID: userID,
			Plan:   passPlan,
			Days:   passDays,
			Actor:  app.CurrentActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to create pass: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s pass for %s\n", passPlan, userID)
		fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", result.SubscriptionID)
		fmt.Fprintf(cmd.OutOrStdout(), "  Expires: %s\n", result.ExpiresAt.Format(time.RFC3339))

		return nil
	},
}

func init() {
	createCmd.Flags().StringVarP(&passPlan, "plan", "p", "premium", "plan the pass grants access to")
	createCmd.Flags().IntVarP(&passDays, "days", "d", 7, "number of days the pass lasts")
}
