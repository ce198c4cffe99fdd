// Telestore - command-line client for the Telestore encrypted storage backend
package main

import (
	"os"

	"github.com/telestore/telestore/internal/cli"
	"github.com/telestore/telestore/internal/version"
)

// Version information, set with -ldflags at build time.
var (
	Version   = "v0.4.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
