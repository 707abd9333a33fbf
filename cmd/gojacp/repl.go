package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/atinylittleshell/gojacp/internal/appupdate"
	"github.com/atinylittleshell/gojacp/internal/repl"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Open an interactive script playground",
	Long: `Opens a terminal playground that runs scripts through the same pipeline as
an ACP prompt turn. Text output, tool calls, and file writes are rendered
in place instead of being streamed to a client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlayground()
	},
}

func runPlayground() error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("the playground needs an interactive terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if BUILD_VERSION != "dev" && appupdate.IsFirstRunOfVersion(BUILD_VERSION) {
		fmt.Print(appupdate.GetUpdateNotesMessage())
		if err := appupdate.UpdateVersionMarker(BUILD_VERSION); err != nil {
			logger.Warn("failed to record version marker", zap.Error(err))
		}
	}

	historyManager, err := initializeHistoryManager(cfg)
	if err != nil {
		logger.Warn("failed to open history database, invocations will not be recorded", zap.Error(err))
		historyManager = nil
	}

	servers, err := cfg.ServerConfigs()
	if err != nil {
		return err
	}

	return repl.Run(repl.Options{
		Servers:      servers,
		History:      historyManager,
		HistoryLimit: cfg.History.MaxEntries,
		UpdateNotice: startUpdateCheck(logger),
		Logger:       logger,
	})
}
