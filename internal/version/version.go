// Package version provides build-time version information.
package version

import "fmt"

// AppName is the name shown in window titles and written into exported files.
const AppName = "geo-assembler"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("%s %s (built %s, commit %s)", AppName, Version, BuildTime, GitCommit)
}
