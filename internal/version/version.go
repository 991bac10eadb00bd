// Package version holds build information injected with -ldflags
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)
