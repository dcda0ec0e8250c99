package version

import (
	"runtime/debug"
	"testing"
)

func TestResolvePrefersLinkerValues(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "ffffffffffffffffffff"},
			{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
		},
	}
	got := resolve(Info{Version: "v1.0.0", Commit: "abc"}, bi)
	if got.Version != "v1.0.0" || got.Commit != "abc" {
		t.Fatalf("linker values overridden: %+v", got)
	}
	if got.BuildTime != "2026-01-01T00:00:00Z" || got.GoVersion != "go1.26.0" {
		t.Fatalf("build info not applied: %+v", got)
	}
}

func TestResolveFallsBackToBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-02-03T04:05:06Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	got := resolve(Info{}, bi)
	if got.Version != "2026-02-03T04:05:06Z" {
		t.Fatalf("version = %q", got.Version)
	}
	if want := "2026-02-03T04:05:06Z (0123456789ab-dirty)"; got.String() != want {
		t.Fatalf("String() = %q, want %q", got.String(), want)
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	got := resolve(Info{}, nil)
	if got.Version == "" || got.Commit != "" {
		t.Fatalf("unexpected %+v", got)
	}
	if got.String() != got.Version {
		t.Fatalf("String() = %q", got.String())
	}
}
