package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func saveAndRestore() func() {
	origVersion, origCommit, origBranch, origBuildTime, origGoVersion :=
		Version, GitCommit, GitBranch, BuildTime, GoVersion
	return func() {
		Version = origVersion
		GitCommit = origCommit
		GitBranch = origBranch
		BuildTime = origBuildTime
		GoVersion = origGoVersion
	}
}

func TestGetVersionInfoDefaults(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, GitBranch, BuildTime, GoVersion = "dev", "", "", "", ""

	info := GetVersionInfo()
	if info.Version != "dev" {
		t.Errorf("expected dev, got %s", info.Version)
	}
	if info.IsRelease {
		t.Error("dev builds are not releases")
	}
}

func TestGetVersionInfoLinked(t *testing.T) {
	defer saveAndRestore()()
	Version = "1.4.0"
	GitCommit = "abc1234"
	BuildTime = "2026-03-01T10:00:00Z"

	info := GetVersionInfo()
	if !info.IsRelease {
		t.Error("expected release build")
	}
	if info.GitCommit != "abc1234" {
		t.Errorf("linked commit must win, got %s", info.GitCommit)
	}
	if !info.BuildDate.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected build date %v", info.BuildDate)
	}
}

func TestFillFromBuildInfo(t *testing.T) {
	info := &Info{Version: "dev"}
	fillFromBuildInfo(info, &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	})
	if info.GitCommit != "0123456" {
		t.Errorf("expected short commit, got %s", info.GitCommit)
	}
	if !info.IsDirty || info.GoVersion != "go1.26.0" || info.BuildTime == "" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestInfoString(t *testing.T) {
	info := &Info{
		Version:   "1.4.0",
		GitCommit: "abc1234",
		GitBranch: "feature/router",
		IsDirty:   true,
		BuildDate: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	got := info.String()
	for _, want := range []string{"1.4.0-abc1234-feature/router-dirty", "built 2026-03-01T10:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}

	info.GitBranch = "main"
	if strings.Contains(info.String(), "main") {
		t.Error("main branch should be omitted")
	}
}

func TestGetShortVersion(t *testing.T) {
	defer saveAndRestore()()
	Version = "2.0.0"
	GitCommit = "deadbee"
	if got := GetShortVersion(); !strings.HasPrefix(got, "2.0.0-deadbee") {
		t.Errorf("unexpected short version %s", got)
	}
}
