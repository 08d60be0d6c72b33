// Package version exposes build-time version information.
package version

import "fmt"

// Set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line for the CLI.
func Info() string {
	if Commit == "" {
		return fmt.Sprintf("kestrel %s", Version)
	}
	return fmt.Sprintf("kestrel %s (%s, built %s)", Version, Commit, Date)
}
