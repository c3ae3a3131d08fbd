// Package version holds build-time version information for the luna binary.
// The variables are populated at build time via -ldflags:
//
//	go build -ldflags="-X github.com/fdctax/luna/internal/version.Version=v1.2.3 \
//	                    -X github.com/fdctax/luna/internal/version.Commit=abc1234 \
//	                    -X github.com/fdctax/luna/internal/version.BuildDate=2025-01-01"
package version

import (
	"fmt"
	"runtime"
)

// Version is the semantic version of the binary. Defaults to "dev".
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build date (RFC3339).
var BuildDate = "unknown"

// Info is the version record printed by `luna version` and logged at startup.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build information.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// String renders i on one line.
func (i Info) String() string {
	return fmt.Sprintf("luna %s (commit %s, built %s, %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion)
}
