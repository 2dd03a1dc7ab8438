// Package subscription implements the subscription command group.
package subscription

import (
	"github.com/spf13/cobra"
)

// Cmd is the subscription command group
var Cmd = &cobra.Command{
	Use:   "subscription",
	Short: "Manage subscriptions",
	Long:  `Inspect and adjust user subscriptions.`,
}

func init() {
	Cmd.AddCommand(extendCmd)
}
