// Package version carries build metadata stamped in at link time.
package version

import "fmt"

// These are wired through -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/gyromean/hywoma/internal/version.Version=v0.3.0"
//
// A plain go build leaves them at "unknown", which version and status
// output print as-is.
var (
	Version   = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String formats the metadata the way the version subcommand prints it.
func String() string {
	return fmt.Sprintf("hywoma %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
