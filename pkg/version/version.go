// Package version carries build metadata for the vtyconform binary.
package version

import (
	"fmt"
	"runtime"
)

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/vtyconform/vtyconform/pkg/version.Version=v0.4.0 \
//	  -X github.com/vtyconform/vtyconform/pkg/version.GitCommit=abc1234 \
//	  -X github.com/vtyconform/vtyconform/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// IsDev reports whether the binary was built without version ldflags.
func IsDev() bool {
	return Version == "dev"
}

// Info returns a one-line version string for the named tool.
func Info(tool string) string {
	if IsDev() {
		return fmt.Sprintf("%s dev build (%s)", tool, runtime.Version())
	}
	return fmt.Sprintf("%s %s (%s) built %s", tool, Version, GitCommit, BuildDate)
}
