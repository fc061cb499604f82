// Package version reports kbqa build information.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version, set at build time:
//
//	-ldflags "-X github.com/jinhua10/ai-reviewer-base-file-rag-sub000/pkg/version.Version=1.2.0"
var Version = "dev"

// Commit and Date are set via ldflags. When unset, Commit and Date fall
// back to the VCS stamp embedded by the go tool.
var (
	Commit = "unknown"
	Date   = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a one-line summary.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("kbqa %s (commit: %s, built: %s, go: %s)",
		info.Version, commit, info.Date, info.GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyVCS(&info, bi.Settings)
	}
	return info
}

func applyVCS(info *BuildInfo, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}
