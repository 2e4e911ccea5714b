// Package internal holds the build information of the accounts command. It is
// logged at startup and recorded with every migration that runs.
package internal

import (
	"runtime/debug"
	"time"
)

var (
	// BuildRevision is the VCS revision, "unknown" outside a VCS build.
	BuildRevision = "unknown"

	// BuildRevisionTime is the commit time of BuildRevision, zero if unknown.
	BuildRevisionTime = time.Time{}

	// BuildLocalModified reports whether the tree had uncommitted changes.
	BuildLocalModified = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			BuildRevision = setting.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, setting.Value)
			if err != nil {
				// keep the zero time, the revision is still logged.
				continue
			}
			BuildRevisionTime = t
		case "vcs.modified":
			BuildLocalModified = setting.Value
		}
	}
}
