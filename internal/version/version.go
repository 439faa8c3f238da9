// Package version holds build information injected with -ldflags, e.g.
//
//	-X github.com/bissquit/statusboard/internal/version.Version=1.2.0
package version

// Build information. Defaults apply to local builds.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)
