package contracts

import (
	"fmt"
	"runtime/debug"
)

// Release metadata, stamped at build time with
// -ldflags "-X retailsales/pkg/contracts.Version=... -X ...BuildTime=..."
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	Commit    = ""
)

const (
	// WorkbookLayout versions the sheet set and column order of exports.
	// Bump it when a sheet is added, renamed or reordered.
	WorkbookLayout = "v1"

	// APIVersion is the version of the JSON API under /api
	APIVersion = "v1"
)

// Revision returns Commit, or the VCS revision the toolchain embedded in
// the binary when Commit was not stamped.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
}

// VersionString is the one-line banner printed by -version
func VersionString(name string) string {
	rev := Revision()
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return fmt.Sprintf("%s %s (rev %s, workbook %s, built %s)", name, Version, rev, WorkbookLayout, BuildTime)
}
