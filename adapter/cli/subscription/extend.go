package subscription

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tutorhive/tutorhive/adapter/cli"
	"github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
)

var extendDays int

var extendCmd = &cobra.Command{
	Use:   "extend [user-id]",
	Short: "Extend a user's subscription",
	Long: `Extend the latest subscription of a user by a number of days.

The extension starts from the current expiry when the subscription is
still active, and from now when it has already lapsed.

Examples:
  tutorhive subscription extend 7c9e6679-7425-40de-944b-e07fc1f90ae7 --days 30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ExtendSubscriptionHandler == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "Extending subscriptions requires a database connection.")
			return nil
		}

		userID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}

		result, err := app.ExtendSubscriptionHandler.Handle(cmd.Context(), commands.ExtendSubscriptionCommand{
			UserID: userID,
			Days:   extendDays,
			Actor:  app.CurrentActorID,
		})
		if err != nil {
			return fmt.Errorf("failed to extend subscription: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Extended subscription %s\n", result.SubscriptionID)
		fmt.Fprintf(cmd.OutOrStdout(), "  Was due: %s\n", result.OldExpiresAt.Format(time.RFC3339))
		fmt.Fprintf(cmd.OutOrStdout(), "  Now due: %s\n", result.NewExpiresAt.Format(time.RFC3339))

		return nil
	},
}

func init() {
	extendCmd.Flags().IntVarP(&extendDays, "days", "d", 30, "number of days to extend by")
}
