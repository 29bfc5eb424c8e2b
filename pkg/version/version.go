// Package version holds build information injected with -ldflags.
package version

var (
	Version   = "v0.0.0-dev"
	GitCommit = "unknown"
)
