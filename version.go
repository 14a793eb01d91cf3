package gerbang

import (
	"fmt"
	"runtime"
)

// Build metadata. GitCommit and BuildDate are meant to be stamped at link
// time:
//
//	go build -ldflags "-X github.com/ambiyansyah-risyal/gerbang.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "v0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// GetVersion returns a one-line description of this build.
func GetVersion() string {
	return fmt.Sprintf("gerbang %s (commit %s, built %s, %s)", Version, GitCommit, BuildDate, GoVersion)
}

// GetVersionInfo returns the build metadata as fields, handy for attaching
// to a structured log line at startup.
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     GitCommit,
		"build_date": BuildDate,
		"go_version": GoVersion,
	}
}
