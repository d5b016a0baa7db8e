// Package version provides version information for the console.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version (e.g., v1.0.0)
	Version = "dev"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info returns version information as a map
func Info() map[string]string {
	return map[string]string{
		"name":       "HPC Console",
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}
}

// String renders a one-line banner for the version subcommand and the
// startup log.
func String() string {
	return fmt.Sprintf("HPC Console %s (built %s, commit %s)", Version, BuildTime, GitCommit)
}
