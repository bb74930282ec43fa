package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromSettings(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "", ""
	fromSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.modified", Value: "true"},
		{Key: "vcs.time", Value: "2026-03-04T10:11:12Z"},
	})
	if Commit != "0123456-dirty" {
		t.Errorf("Commit = %q", Commit)
	}
	if Version != "dev-20260304" {
		t.Errorf("Version = %q", Version)
	}
}

func TestFromSettingsKeepsLdflags(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "v1.0.0", "abc"
	fromSettings([]debug.BuildSetting{{Key: "vcs.revision", Value: "ffffffffff"}})
	if Version != "v1.0.0" || Commit != "abc" {
		t.Errorf("got %s %s", Version, Commit)
	}
}

func TestBanner(t *testing.T) {
	b := Banner("qcdiag")
	if !strings.HasPrefix(b, "qcdiag "+Version) || !strings.Contains(b, Commit) {
		t.Errorf("Banner() = %q", b)
	}
	if UserAgent() != "qcdiag/"+Version {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
