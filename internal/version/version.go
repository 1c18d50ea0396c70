// Package version holds build information set with -ldflags at release time.
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String returns the version line printed by --version
func String() string {
	return Version + " (" + Commit + ") " + BuildTime
}
