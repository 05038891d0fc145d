// Package version identifies a zdump build: its release, the revision it
// was built from and the modules linked into it.
package version

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
)

// Version is a zdump release.
type Version struct {
	Major    int
	Minor    int
	Patch    int
	Metadata string
	// Build is the revision the binary was built from. "$Id$" means it
	// is taken from the VCS stamp of the Go build info.
	Build string
}

// ZdumpVersion is the current version of zdump.
var ZdumpVersion = Version{Major: 0, Minor: 3, Patch: 0, Build: "$Id$"}

func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		s += "-" + v.Metadata
	}
	return s
}

var readBuildInfo = debug.ReadBuildInfo

// Revision returns the revision zdump was built from. Builds of a
// modified tree get a "+dirty" suffix; "unknown" is returned when there
// is no VCS stamp.
func (v Version) Revision() string {
	if v.Build != "" && !strings.HasPrefix(v.Build, "$Id$") {
		return v.Build
	}
	info, ok := readBuildInfo()
	if !ok {
		return "unknown"
	}
	rev, dirty := "", false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "unknown"
	}
	if dirty {
		rev += "+dirty"
	}
	return rev
}

// Module is a Go module linked into zdump.
type Module struct {
	Path    string
	Version string
	// Replace is the replacement module as "path version", if any.
	Replace string
}

func (m Module) String() string {
	if m.Replace != "" {
		return fmt.Sprintf("%s %s => %s", m.Path, m.Version, m.Replace)
	}
	return m.Path + " " + m.Version
}

// Modules returns the main module followed by its dependencies sorted by
// path, or nil for a binary not built in module mode.
func Modules() []Module {
	info, ok := readBuildInfo()
	if !ok {
		return nil
	}
	mods := []Module{{Path: info.Main.Path, Version: info.Main.Version}}
	deps := make([]Module, 0, len(info.Deps))
	for _, dep := range info.Deps {
		m := Module{Path: dep.Path, Version: dep.Version}
		if dep.Replace != nil {
			m.Replace = strings.TrimSpace(dep.Replace.Path + " " + dep.Replace.Version)
		}
		deps = append(deps, m)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })
	return append(mods, deps...)
}
