package cli

import (
	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"

	"github.com/keywarden/keywarden/internal/auth"
	"github.com/keywarden/keywarden/internal/identity"
)

var (
	loginAPIKey       bool
	loginClientID     string
	loginClientSecret string
	loginPassword     string
	loginTwoFactor    string
	loginProvider     int
)

var loginCmd = &cobra.Command{
	Use:   "login [email]",
	Short: "Log in to your account",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, cleanup, err := newOrchestrator()
		if err != nil {
			return err
		}
		defer cleanup()

		if loginAPIKey {
			return runAPIKeyLogin(cmd, o)
		}

		email := ""
		if len(args) == 1 {
			email = args[0]
		}
		if email == "" {
			cmd.PrintErr("Email address: ")
			if email, err = readLine(); err != nil {
				return err
			}
		}

		password := []byte(loginPassword)
		if loginPassword == "" {
			if password, err = readPassword("Master password: "); err != nil {
				return err
			}
		}
		defer memguard.WipeBytes(password)

		var twoFactor *identity.TwoFactor
		if loginTwoFactor != "" {
			twoFactor = &identity.TwoFactor{Token: loginTwoFactor, Provider: loginProvider}
		}

		key, err := o.LoginPassword(cmd.Context(), email, password, twoFactor)
		if err != nil {
			return err
		}
		printSuccess("You are logged in!")
		printSessionExport(key)
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginAPIKey, "apikey", false, "log in with an api key instead of a password")
	loginCmd.Flags().StringVar(&loginClientID, "client-id", "", "api key client id")
	loginCmd.Flags().StringVar(&loginClientSecret, "client-secret", "", "api key client secret")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "master password (prompted when omitted)")
	loginCmd.Flags().StringVar(&loginTwoFactor, "code", "", "two-step login code")
	loginCmd.Flags().IntVar(&loginProvider, "method", 0, "two-step login method")
}

func runAPIKeyLogin(cmd *cobra.Command, o *auth.Orchestrator) error {
	clientID := loginClientID
	clientSecret := loginClientSecret
	var err error

	if clientID == "" {
		cmd.PrintErr("client_id: ")
		if clientID, err = readLine(); err != nil {
			return err
		}
	}
	if clientSecret == "" {
		var secret []byte
		if secret, err = readPassword("client_secret: "); err != nil {
			return err
		}
		clientSecret = string(secret)
	}

	key, err := o.LoginAPIKey(cmd.Context(), clientID, clientSecret)
	if err != nil {
		return err
	}
	printSuccess("You are logged in!")
	printSessionExport(key)
	return nil
}
