package core

import (
	"os"
	"path/filepath"
)

type Paths struct {
	DataDir           string
	LogFile           string
	ConfigFile        string
	HistoryFile       string
	LatestVersionFile string
	VersionMarkerFile string
}

var defaultPaths *Paths

func ensureDefaultPaths() {
	if defaultPaths == nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}

		defaultPaths = &Paths{
			DataDir:           filepath.Join(homeDir, ".gojacp"),
			LogFile:           filepath.Join(homeDir, ".gojacp", "gojacp.log"),
			ConfigFile:        filepath.Join(homeDir, ".gojacp", "config.yaml"),
			HistoryFile:       filepath.Join(homeDir, ".gojacp", "history.db"),
			LatestVersionFile: filepath.Join(homeDir, ".gojacp", "latest_version.txt"),
			VersionMarkerFile: filepath.Join(homeDir, ".gojacp", "version_marker"),
		}

		err = os.MkdirAll(defaultPaths.DataDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

func DataDir() string {
	ensureDefaultPaths()
	return defaultPaths.DataDir
}

func LogFile() string {
	ensureDefaultPaths()
	return defaultPaths.LogFile
}

func ConfigFile() string {
	ensureDefaultPaths()
	return defaultPaths.ConfigFile
}

func HistoryFile() string {
	ensureDefaultPaths()
	return defaultPaths.HistoryFile
}

func LatestVersionFile() string {
	ensureDefaultPaths()
	return defaultPaths.LatestVersionFile
}

func VersionMarkerFile() string {
	ensureDefaultPaths()
	return defaultPaths.VersionMarkerFile
}

// ResetPaths clears the cached paths, forcing them to be reinitialized.
// This is primarily used for testing purposes.
func ResetPaths() {
	defaultPaths = nil
}
