package main

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/atinylittleshell/gojacp/internal/appupdate"
	"github.com/atinylittleshell/gojacp/internal/filesystem"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the gojacp version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gojacp version %s\n", BUILD_VERSION)

		latest := appupdate.ReadLatestVersion(filesystem.OSFileSystem{})
		if latest == "" {
			return
		}
		current, err := semver.NewVersion(BUILD_VERSION)
		if err != nil {
			return
		}
		latestVer, err := semver.NewVersion(latest)
		if err != nil {
			return
		}
		if latestVer.GreaterThan(current) {
			fmt.Printf("a newer version %s is available, run `gojacp update` to install it\n", latest)
		}
	},
}
