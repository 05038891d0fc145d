package version

import (
	"runtime/debug"
	"testing"
)

func fakeBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	old := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return info, info != nil }
	t.Cleanup(func() { readBuildInfo = old })
}

func TestVersionString(t *testing.T) {
	tests := []struct {
		v    Version
		want string
	}{
		{Version{Major: 1, Minor: 2, Patch: 3}, "1.2.3"},
		{Version{Major: 0, Minor: 3, Patch: 0, Metadata: "rc1"}, "0.3.0-rc1"},
		{ZdumpVersion, "0.3.0"},
	}
	for _, tc := range tests {
		if got := tc.v.String(); got != tc.want {
			t.Errorf("%#v.String() = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestRevision(t *testing.T) {
	stamp := func(settings ...debug.BuildSetting) *debug.BuildInfo {
		return &debug.BuildInfo{Settings: settings}
	}
	tests := []struct {
		name  string
		build string
		info  *debug.BuildInfo
		want  string
	}{
		{"explicit", "abc123", nil, "abc123"},
		{"no build info", "$Id$", nil, "unknown"},
		{"no vcs stamp", "$Id$", stamp(), "unknown"},
		{"clean", "$Id$", stamp(debug.BuildSetting{Key: "vcs.revision", Value: "f00d"}, debug.BuildSetting{Key: "vcs.modified", Value: "false"}), "f00d"},
		{"dirty", "", stamp(debug.BuildSetting{Key: "vcs.modified", Value: "true"}, debug.BuildSetting{Key: "vcs.revision", Value: "f00d"}), "f00d+dirty"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fakeBuildInfo(t, tc.info)
			if got := (Version{Build: tc.build}).Revision(); got != tc.want {
				t.Errorf("Revision() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestModules(t *testing.T) {
	fakeBuildInfo(t, &debug.BuildInfo{
		Main: debug.Module{Path: "example.com/zdump", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "gopkg.in/yaml.v2", Version: "v2.4.0"},
			{Path: "github.com/spf13/cobra", Version: "v1.1.3", Replace: &debug.Module{Path: "../cobra"}},
		},
	})
	want := []string{
		"example.com/zdump (devel)",
		"github.com/spf13/cobra v1.1.3 => ../cobra",
		"gopkg.in/yaml.v2 v2.4.0",
	}
	mods := Modules()
	if len(mods) != len(want) {
		t.Fatalf("Modules() = %v", mods)
	}
	for i := range want {
		if got := mods[i].String(); got != want[i] {
			t.Errorf("module %d = %q, want %q", i, got, want[i])
		}
	}

	fakeBuildInfo(t, nil)
	if mods := Modules(); mods != nil {
		t.Errorf("expected no modules without build info, got %v", mods)
	}
}
