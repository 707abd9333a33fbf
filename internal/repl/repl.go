package repl

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/atinylittleshell/gojacp/internal/history"
	"github.com/atinylittleshell/gojacp/internal/script"
	"github.com/atinylittleshell/gojacp/internal/script/mcp"
)

// historySessionID labels playground invocations in the history database so
// they can be told apart from ACP session turns.
const historySessionID = "repl"

// Options configures a playground run.
type Options struct {
	// Servers are MCP servers from the config file, connected before the
	// first script runs.
	Servers map[string]mcp.ServerConfig

	// History records invocations. Optional.
	History *history.HistoryManager

	// HistoryLimit caps retained history entries after each run. Zero or
	// negative means unlimited.
	HistoryLimit int

	// UpdateNotice yields a version string when a newer release was found.
	UpdateNotice <-chan string

	Logger *zap.Logger
}

// invocationRunner executes scripts through the real invocation pipeline,
// recording each run in history.
type invocationRunner struct {
	tools        *mcp.Manager
	history      *history.HistoryManager
	historyLimit int
	logger       *zap.Logger
}

func (r *invocationRunner) Run(ctx context.Context, source string, sink script.UpdateSink) *script.Outcome {
	var tools script.ToolCaller
	if r.tools != nil {
		tools = r.tools
	}

	inv, err := script.NewInvocation(&script.Options{
		Source: source,
		Sink:   sink,
		Tools:  tools,
		Logger: r.logger,
	})
	if err != nil {
		return &script.Outcome{
			Err: script.NewScriptError(script.ErrorKindScript, "failed to prepare script: %v", err),
		}
	}

	var entry *history.InvocationEntry
	if r.history != nil {
		entry, err = r.history.StartInvocation(historySessionID, script.ExtractSource(source))
		if err != nil {
			r.logger.Warn("failed to record invocation history", zap.Error(err))
			entry = nil
		}
	}

	outcome := inv.Run(ctx)

	if entry != nil {
		stopReason := "end_turn"
		errorKind := ""
		errorDetail := ""
		if outcome.Cancelled() {
			stopReason = "cancelled"
		}
		if outcome.Err != nil {
			errorKind = string(outcome.Err.Kind)
			errorDetail = outcome.Err.Detail
		}
		if _, ferr := r.history.FinishInvocation(entry, stopReason, errorKind, errorDetail, outcome.Duration); ferr != nil {
			r.logger.Warn("failed to update invocation history", zap.Error(ferr))
		}
		if r.historyLimit > 0 {
			if ferr := r.history.EnforceRetention(r.historyLimit); ferr != nil {
				r.logger.Debug("failed to enforce history retention", zap.Error(ferr))
			}
		}
	}

	return outcome
}

// Run starts the playground and blocks until the user quits.
func Run(opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	manager := mcp.NewManager()
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Debug("failed to close MCP servers", zap.Error(err))
		}
	}()

	for name, cfg := range opts.Servers {
		if err := manager.RegisterServer(name, cfg); err != nil {
			logger.Warn("failed to register MCP server",
				zap.String("server", name),
				zap.Error(err),
			)
		}
	}

	runner := &invocationRunner{
		tools:        manager,
		history:      opts.History,
		historyLimit: opts.HistoryLimit,
		logger:       logger,
	}

	program := tea.NewProgram(NewModel(runner), tea.WithAltScreen())

	// The model needs the program handle before the first script runs so the
	// sink can inject stream updates.
	go program.Send(setProgramMsg{program: program})

	if opts.UpdateNotice != nil {
		go func() {
			for version := range opts.UpdateNotice {
				program.Send(updateAvailableMsg{version: version})
			}
		}()
	}

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("playground terminated abnormally: %w", err)
	}
	return nil
}
