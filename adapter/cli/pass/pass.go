// Package pass implements the pass command group.
package pass

import (
	"github.com/spf13/cobra"
)

// Cmd is the pass command group
var Cmd = &cobra.Command{
	Use:   "pass",
	Short: "Manage manual passes",
	Long:  `Grant access passes outside the checkout flow.`,
}

func init() {
	Cmd.AddCommand(createCmd)
}
