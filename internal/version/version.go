// Package version reports the tally build: ldflags values plus the VCS
// stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set via -ldflags "-X tally/internal/version.Version=..." at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Info contains version and build information
type Info struct {
	Version     string `json:"version"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	VCSRevision string `json:"vcs_revision,omitempty"`
	VCSTime     string `json:"vcs_time,omitempty"`
	VCSModified bool   `json:"vcs_modified"`
}

// Get returns the current version and build information
func Get() Info {
	info := Info{
		Version:   Version,
		BuildTime: BuildTime,
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info = fromBuildInfo(info, buildInfo)
	}
	return info
}

func fromBuildInfo(info Info, bi *debug.BuildInfo) Info {
	info.GoVersion = bi.GoVersion
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			info.VCSRevision = setting.Value
		case "vcs.time":
			info.VCSTime = setting.Value
		case "vcs.modified":
			info.VCSModified = setting.Value == "true"
		}
	}
	return info
}

// String returns a one-line summary, e.g. "tally dev (go1.24.1, commit 1a2b3c4d)"
func (i Info) String() string {
	var details []string
	if i.GoVersion != "" {
		details = append(details, i.GoVersion)
	}
	if i.BuildTime != "unknown" && i.BuildTime != "" {
		details = append(details, "built "+i.BuildTime)
	}
	if i.VCSRevision != "" {
		rev := i.VCSRevision
		if len(rev) > 8 {
			rev = rev[:8]
		}
		if i.VCSModified {
			rev += "+dirty"
		}
		details = append(details, "commit "+rev)
	}

	if len(details) == 0 {
		return fmt.Sprintf("tally %s", i.Version)
	}
	return fmt.Sprintf("tally %s (%s)", i.Version, strings.Join(details, ", "))
}

// Check returns a warning for builds that cannot be traced to a clean
// commit, or "" when there is nothing to report
func (i Info) Check() string {
	if i.VCSModified {
		return "binary built from a modified source tree"
	}
	if i.VCSRevision == "" && i.Version == "dev" {
		return "no version control information available (development build)"
	}
	return ""
}
