package version

import "runtime"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders build metadata for `steno version` and session headers.
func String() string {
	return "steno " + Version + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// Short returns the release identifier reported to error tracking.
func Short() string {
	return "steno@" + Version
}
