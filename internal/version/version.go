// Package version carries build metadata, set with -ldflags -X at release
// time.
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	// Version is the release tag.
	Version = "dev"
	// GitSHA is the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Revision returns GitSHA, or the VCS revision stamped by the go tool
// when GitSHA was not set at link time.
func Revision() string {
	if GitSHA != "unknown" {
		return GitSHA
	}
	info, ok := readBuildInfo()
	if !ok {
		return GitSHA
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return GitSHA
}

// String formats the metadata for -version output.
func String(program string) string {
	return fmt.Sprintf("%s %s (%s, built %s)", program, Version, Revision(), BuildTime)
}
