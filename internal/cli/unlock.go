package cli

import (
	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var unlockPassword string

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the vault with your master password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		password := []byte(unlockPassword)
		if unlockPassword == "" {
			if password, err = readPassword("Master password: "); err != nil {
				return err
			}
		}
		defer memguard.WipeBytes(password)

		key, err := o.Unlock(cmd.Context(), password)
		if err != nil {
			return err
		}
		printSuccess("Your vault is now unlocked!")
		printSessionExport(key)
		return nil
	},
}

func init() {
	unlockCmd.Flags().StringVar(&unlockPassword, "password", "", "master password (prompted when omitted)")
}
