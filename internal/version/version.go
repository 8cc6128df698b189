// Package version carries build identity injected via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String returns a single-line description suitable for startup logs and
// the status API.
func String() string {
	return fmt.Sprintf("launchmon %s (%s, built %s)", Version, GitSHA, BuildTime)
}
