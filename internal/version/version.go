// Package version reports the qcdiag build version.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time:
//
//	go build -ldflags="-X github.com/muurk/qcdiag/internal/version.Version=v0.4.0 \
//	                   -X github.com/muurk/qcdiag/internal/version.Commit=abc123"
//
// Unset values come from the VCS stamp in the build info, then fall back
// to "dev".
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		info, ok := debug.ReadBuildInfo()
		if ok {
			fromSettings(info.Settings)
		}
	}
	if Version == "" {
		Version = "dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

func fromSettings(settings []debug.BuildSetting) {
	var revision, modified, stamp string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			stamp = s.Value
		}
	}

	if Commit == "" && revision != "" {
		Commit = revision[:min(len(revision), 7)]
		if modified == "true" {
			Commit += "-dirty"
		}
	}
	if Version == "" && stamp != "" {
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			Version = "dev-" + t.Format("20060102")
		}
	}
}

// Banner is the line printed by "qcdiag version".
func Banner(program string) string {
	return fmt.Sprintf("%s %s (commit: %s, %s, %s/%s)",
		program, Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies qcdiag to a relay in the websocket handshake.
func UserAgent() string {
	return "qcdiag/" + Version
}
