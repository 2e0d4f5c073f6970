package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statusSession string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the authentication state of the active account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		status, err := o.Status(sessionKeyArg(statusSession))
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(status))
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusSession, "session", "", "session key (defaults to KEYWARDEN_SESSION)")
}
