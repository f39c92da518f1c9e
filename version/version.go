// Package version holds build information stamped in by the linker.
package version

import "runtime"

// Set via ldflags at build time:
//
//	go build -ldflags "\
//	  -X github.com/jackzampolin/critic/version.GitRelease=v0.1.0 \
//	  -X github.com/jackzampolin/critic/version.GitCommit=abc1234 \
//	  -X github.com/jackzampolin/critic/version.GitCommitDate=2025-01-01"
var (
	// GitRelease is the release tag or branch the binary was built from.
	GitRelease = "dev"
	// GitCommit is the short commit hash.
	GitCommit = "unknown"
	// GitCommitDate is the commit date of the build.
	GitCommitDate = "unknown"
)

// GoInfo is the Go toolchain the binary was compiled with.
var GoInfo = runtime.Version()
