package cli

import (
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the vault and discard the session state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		if err := o.Lock(); err != nil {
			return err
		}
		printSuccess("Your vault is locked.")
		return nil
	},
}
