package appupdate

import (
	"os"

	"github.com/atinylittleshell/gojacp/internal/core"
)

// GetLastUsedVersion reads the last used version from the version marker
// file. Returns empty string if no marker exists (fresh install).
func GetLastUsedVersion() string {
	data, err := os.ReadFile(core.VersionMarkerFile())
	if err != nil {
		return ""
	}
	return string(data)
}

// UpdateVersionMarker writes the current version to the version marker file.
func UpdateVersionMarker(version string) error {
	return os.WriteFile(core.VersionMarkerFile(), []byte(version), 0644)
}

// IsFirstRunOfVersion reports whether this build's version differs from the
// last recorded one. A fresh install with no marker counts as a first run.
func IsFirstRunOfVersion(version string) bool {
	return GetLastUsedVersion() != version
}

// GetUpdateNotesMessage returns the notice shown on the first interactive
// run of a new build.
func GetUpdateNotesMessage() string {
	return `
┌──────────────────────────────────────────────────────────────────────┐
│  gojacp has been updated!                                            │
│                                                                      │
│  • ACP agent over stdio: run gojacp with no arguments                │
│  • Script playground: gojacp repl                                    │
│  • Invocation history: gojacp history                                │
│                                                                      │
│  Learn more: https://github.com/atinylittleshell/gojacp              │
└──────────────────────────────────────────────────────────────────────┘
`
}
