// Package version exposes build-time version information.
package version

import (
	"runtime"
)

var (
	// Version is the semantic version, overridden by build flags.
	Version = "dev"

	// GitCommit is the source commit, overridden by build flags.
	GitCommit = "unknown"

	// BuildDate is the build timestamp, overridden by build flags.
	BuildDate = "unknown"

	// GoVersion is the toolchain that produced the binary.
	GoVersion = runtime.Version()
)
