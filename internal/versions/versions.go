// Package versions exposes the build identity of the sync binary.
package versions

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const unknown = "unknown"

// Set at build time through -ldflags. Dev builds fall back to the VCS
// stamps the toolchain embeds into the binary.
var (
	Version   = "dev"
	Commit    = unknown
	BuildDate = unknown
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get assembles the binary's build identity from the ldflags values,
// filling gaps from embedded build info on dev builds.
func Get() Info {
	return assemble(Version, Commit, BuildDate)
}

func assemble(version, commit, buildDate string) Info {
	if strings.HasPrefix(version, "dev") {
		commit, buildDate = fromBuildInfo(commit, buildDate)
	}

	if buildDate != unknown {
		if t, err := time.Parse(time.RFC3339, buildDate); err == nil {
			buildDate = t.Format("2006-01-02 15:04:05 MST")
		}
	}

	if version == "dev" {
		version = "build-" + truncate(commit, 8)
	}

	return Info{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

func fromBuildInfo(commit, buildDate string) (string, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, buildDate
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			if commit == unknown {
				commit = setting.Value
			}
		case "vcs.time":
			if buildDate == unknown {
				buildDate = setting.Value
			}
		}
	}
	return commit, buildDate
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
