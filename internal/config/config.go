// Package config resolves the storage directory, service endpoints, and
// session environment for the CLI, from explicit overrides, environment
// variables, and platform defaults, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables honored by the CLI.
const (
	// EnvDataDir overrides the storage directory.
	EnvDataDir = "KEYWARDEN_DATA_DIR"
	// EnvAPIURL overrides the API base URL.
	EnvAPIURL = "KEYWARDEN_API_URL"
	// EnvIdentityURL overrides the identity-service base URL.
	EnvIdentityURL = "KEYWARDEN_IDENTITY_URL"
	// EnvSession carries the exported session key between invocations.
	EnvSession = "KEYWARDEN_SESSION"
)

// Default service endpoints.
const (
	defaultAPIURL      = "https://api.keywarden.io"
	defaultIdentityURL = "https://identity.keywarden.io"

	portableDirName = "keywarden-data"
	appDirName      = "keywarden"
)

// Options holds the resolved configuration values.
type Options struct {
	// StorageDir is the directory holding data.json.
	StorageDir string
	// APIURL is the base URL of the API host.
	APIURL string
	// IdentityURL is the base URL of the identity host.
	IdentityURL string
}

// Load resolves the configuration. explicitDir, when non-empty, wins over
// every other storage-directory source.
func Load(explicitDir string) (*Options, error) {
	dir, err := resolveStorageDir(explicitDir)
	if err != nil {
		return nil, err
	}

	opts := &Options{
		StorageDir:  dir,
		APIURL:      defaultAPIURL,
		IdentityURL: defaultIdentityURL,
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		opts.APIURL = v
	}
	if v := os.Getenv(EnvIdentityURL); v != "" {
		opts.IdentityURL = v
	}
	return opts, nil
}

// SessionKeyFromEnv returns the exported session key text, if present.
func SessionKeyFromEnv() (string, bool) {
	v := os.Getenv(EnvSession)
	return v, v != ""
}

// resolveStorageDir picks the storage directory by priority: explicit
// override, portable directory co-located with the executable, environment
// override, platform default.
func resolveStorageDir(explicitDir string) (string, error) {
	if explicitDir != "" {
		return explicitDir, nil
	}

	if exe, err := os.Executable(); err == nil {
		portable := filepath.Join(filepath.Dir(exe), portableDirName)
		if info, err := os.Stat(portable); err == nil && info.IsDir() {
			return portable, nil
		}
	}

	if v := os.Getenv(EnvDataDir); v != "" {
		return v, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve storage directory: %w", err)
	}
	return filepath.Join(base, appDirName), nil
}
