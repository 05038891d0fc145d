package main

import (
	"os"

	"github.com/eclipse-openj9/openj9-sub015/cmd/zdump/cmds"
	"github.com/eclipse-openj9/openj9-sub015/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.ZdumpVersion.Build = Build
	}
	// cobra has already printed the error.
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
