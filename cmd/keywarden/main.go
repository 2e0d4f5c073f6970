// Package main is the keywarden command-line entry point.
package main

import (
	"cmp"
	"fmt"

	"github.com/keywarden/keywarden/internal/cli"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	cli.Execute(fmt.Sprintf("%s (built %s)", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A")))
}
