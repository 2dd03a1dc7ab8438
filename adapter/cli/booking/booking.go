// Package booking implements the booking command group.
package booking

import (
	"github.com/spf13/cobra"
)

// Cmd is the booking command group
var Cmd = &cobra.Command{
	Use:   "booking",
	Short: "Inspect bookings",
	Long:  `Look up booking and payment state for support and operations.`,
}

func init() {
	Cmd.AddCommand(statusCmd)
}
