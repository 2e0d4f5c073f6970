// Package cli implements the keywarden command tree: login, unlock, lock,
// logout, and status over the shared local store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/keywarden/keywarden/internal/auth"
	"github.com/keywarden/keywarden/internal/config"
	"github.com/keywarden/keywarden/internal/identity"
	"github.com/keywarden/keywarden/internal/storage"
)

var (
	dataDir string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:           "keywarden",
	Short:         "keywarden manages your credentials and vault sessions",
	Long:          "keywarden logs you in to the keywarden service, unlocks your vault\nwith your master password, and manages the session key that protects\nyour local state between invocations.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "storage directory override")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the command tree and renders any failure with its hint.
func Execute(version string) {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

// newOrchestrator assembles the orchestrator from the resolved
// configuration. The returned cleanup flushes the logger.
func newOrchestrator() (*auth.Orchestrator, func(), error) {
	opts, err := config.Load(dataDir)
	if err != nil {
		return nil, nil, err
	}

	log := zap.NewNop()
	if debug {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, nil, fmt.Errorf("init logger: %w", err)
		}
	}

	store, err := storage.Open(opts.StorageDir, log)
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}

	client := identity.NewClient(opts.APIURL, opts.IdentityURL, nil, log)
	o := auth.New(store, client, log)
	o.TwoFactorPrompt = promptTwoFactor
	o.NewDeviceOTPPrompt = promptNewDeviceOTP
	return o, func() { _ = log.Sync() }, nil
}

// sessionKeyArg resolves the session key for status checks: the --session
// flag value when given, the environment otherwise.
func sessionKeyArg(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v, ok := config.SessionKeyFromEnv(); ok {
		return v
	}
	return ""
}
