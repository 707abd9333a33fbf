package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/atinylittleshell/gojacp/internal/acp"
	"github.com/atinylittleshell/gojacp/internal/appupdate"
	"github.com/atinylittleshell/gojacp/internal/config"
	"github.com/atinylittleshell/gojacp/internal/core"
	"github.com/atinylittleshell/gojacp/internal/filesystem"
	"github.com/atinylittleshell/gojacp/internal/history"
)

var BUILD_VERSION = "dev"

var (
	debugFlag  bool
	configPath string
	forceTTY   bool
)

var rootCmd = &cobra.Command{
	Use:   "gojacp",
	Short: "An ACP agent that runs JavaScript prompts against MCP tool servers",
	Long: `gojacp is an agent for the Agent Client Protocol. It treats each prompt as
a JavaScript program: the script calls say() to stream text back to the
client, mcp.listTools() and mcp.callTool() to use MCP tool servers, and
writeFile() to produce files in the session working directory.

Launched with no arguments it serves ACP over stdio, which is how ACP
clients are expected to run it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true

	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config file (default ~/.gojacp/config.yaml)")
	rootCmd.Flags().BoolVar(&forceTTY, "force-tty", false, "serve ACP even when stdin is a terminal")

	rootCmd.AddCommand(replCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAgent() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initializeLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// stdout carries the protocol stream, so a human launching gojacp in a
	// terminal is almost certainly not what they wanted.
	if term.IsTerminal(int(os.Stdin.Fd())) && !forceTTY {
		fmt.Fprintln(os.Stderr, "gojacp speaks the Agent Client Protocol over stdio and expects to be launched by an ACP client.")
		fmt.Fprintln(os.Stderr, "Run `gojacp repl` to experiment with scripts interactively.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	historyManager, err := initializeHistoryManager(cfg)
	if err != nil {
		logger.Warn("failed to open history database, invocations will not be recorded", zap.Error(err))
		historyManager = nil
	}

	servers, err := cfg.ServerConfigs()
	if err != nil {
		logger.Error("invalid MCP server configuration", zap.Error(err))
		return err
	}

	startUpdateCheck(logger)

	agent := acp.NewAgent(os.Stdin, os.Stdout, acp.AgentOptions{
		Version:       BUILD_VERSION,
		ConfigServers: servers,
		History:       historyManager,
		HistoryLimit:  cfg.History.MaxEntries,
		Logger:        logger,
	})

	return agent.Serve(ctx)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = core.ConfigFile()
	}
	return config.Load(path)
}

func initializeLogger(cfg *config.Config) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevelAt(zap.InfoLevel)
	if cfg.LogLevel != "" {
		parsed, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid logLevel %q in config: %w", cfg.LogLevel, err)
		}
		logLevel = parsed
	}
	if debugFlag || BUILD_VERSION == "dev" {
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.Level = logLevel

	// Logs only go to file so they cannot corrupt the protocol stream on
	// stdout or the playground UI.
	loggerConfig.OutputPaths = []string{
		core.LogFile(),
	}

	return loggerConfig.Build()
}

func initializeHistoryManager(cfg *config.Config) (*history.HistoryManager, error) {
	if cfg.History.Disabled {
		return nil, nil
	}
	return history.NewHistoryManager(core.HistoryFile())
}

// startUpdateCheck kicks off the background release check. The result lands
// in the data directory for `gojacp version` and the playground to surface.
func startUpdateCheck(logger *zap.Logger) chan string {
	updater, err := appupdate.NewGitHubUpdater()
	if err != nil {
		logger.Warn("failed to initialize self-update check", zap.Error(err))
		return nil
	}
	return appupdate.HandleSelfUpdate(BUILD_VERSION, logger, filesystem.OSFileSystem{}, updater)
}
