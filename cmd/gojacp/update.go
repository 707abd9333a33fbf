package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atinylittleshell/gojacp/internal/appupdate"
	"github.com/atinylittleshell/gojacp/internal/styles"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update gojacp to the latest release",
	RunE: func(cmd *cobra.Command, args []string) error {
		updater, err := appupdate.NewGitHubUpdater()
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, styles.LOG("checking for updates..."))
		applied, err := appupdate.ApplyUpdate(cmd.Context(), BUILD_VERSION, updater)
		if err != nil {
			return err
		}

		if applied == "" {
			fmt.Printf("gojacp %s is already the latest version\n", BUILD_VERSION)
			return nil
		}

		fmt.Printf("updated gojacp to %s\n", applied)
		return nil
	},
}
