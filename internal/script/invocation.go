package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/atinylittleshell/gojacp/internal/script/mcp"
)

// ToolCaller is the tool-server collaborator boundary. The MCP manager
// implements it; tests substitute fakes.
type ToolCaller interface {
	// ListTools returns the tool names a server advertises, in the server's
	// own order.
	ListTools(ctx context.Context, server string) ([]string, error)

	// CallTool invokes one tool with wire-form arguments.
	CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error)
}

// FileWriter is the file collaborator boundary: it persists writeFile
// payloads.
type FileWriter interface {
	WriteFile(path string, content string) error
}

// DirFileWriter writes files through the OS, resolving relative paths
// against a base directory.
type DirFileWriter struct {
	Base string
}

func (w DirFileWriter) WriteFile(path string, content string) error {
	if !filepath.IsAbs(path) && w.Base != "" {
		path = filepath.Join(w.Base, path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// Options configures a single script invocation.
type Options struct {
	// Source is the raw prompt text; the script region is extracted from it.
	Source string

	// Sink receives stream updates. Required.
	Sink UpdateSink

	// Tools services mcp.* host calls. Optional; calls fail with
	// UnknownServer when nil.
	Tools ToolCaller

	// Files services writeFile host calls. Defaults to DirFileWriter in the
	// current directory.
	Files FileWriter

	Logger *zap.Logger
}

// Outcome is the terminal state of one invocation.
type Outcome struct {
	// Err is nil on success. Uncaught script failures and unrecoverable
	// host failures land here.
	Err *ScriptError

	Duration time.Duration
}

func (o *Outcome) Cancelled() bool {
	return o.Err != nil && o.Err.Kind == ErrorKindCancelled
}

// Invocation runs one script turn: the script executes on its own goroutine
// while the driver services host calls one at a time and forwards updates in
// order.
type Invocation struct {
	src     string
	bridge  *Bridge
	engine  *Engine
	emitter *Emitter
	tools   ToolCaller
	files   FileWriter
	logger  *zap.Logger
}

// NewInvocation builds an invocation with a fresh runtime and host function
// table. Each invocation gets its own; nothing is shared across turns.
func NewInvocation(opts *Options) (*Invocation, error) {
	if opts == nil || opts.Sink == nil {
		return nil, fmt.Errorf("invocation requires an update sink")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	files := opts.Files
	if files == nil {
		files = DirFileWriter{}
	}

	bridge := newBridge()
	engine, err := NewEngine(bridge)
	if err != nil {
		return nil, err
	}

	return &Invocation{
		src:     ExtractSource(opts.Source),
		bridge:  bridge,
		engine:  engine,
		emitter: NewEmitter(opts.Sink),
		tools:   opts.Tools,
		files:   files,
		logger:  logger,
	}, nil
}

// Run executes the script to completion or cancellation and returns the
// outcome. The update stream is finished when Run returns.
func (inv *Invocation) Run(ctx context.Context) *Outcome {
	started := time.Now()
	defer inv.bridge.Close()

	scriptDone := make(chan *ScriptError, 1)
	go func() {
		scriptDone <- inv.engine.Run(inv.src)
	}()

	for {
		select {
		case req := <-inv.bridge.Calls():
			res := inv.dispatch(ctx, req)
			if !req.resolve(res) {
				inv.logger.Error("host call was already resolved", zap.Stringer("op", req.op))
			}
			if res.err != nil && !res.err.Recoverable() {
				inv.engine.Interrupt(res.err)
			}

		case <-ctx.Done():
			cancelErr := NewScriptError(ErrorKindCancelled, "turn cancelled")
			inv.engine.Interrupt(cancelErr)
			// Resolve any straggling host calls so the script goroutine can
			// observe the interrupt and unwind.
			for {
				select {
				case req := <-inv.bridge.Calls():
					req.resolve(hostResult{err: cancelErr})
				case <-scriptDone:
					return &Outcome{Err: cancelErr, Duration: time.Since(started)}
				}
			}

		case err := <-scriptDone:
			return &Outcome{Err: err, Duration: time.Since(started)}
		}
	}
}

// dispatch services one host call against the collaborators. It emits any
// stream updates the operation implies before returning, so update order
// always matches host-call order.
func (inv *Invocation) dispatch(ctx context.Context, req *hostRequest) hostResult {
	switch req.op {
	case opEmitText:
		if serr := inv.emitter.Text(ctx, req.text); serr != nil {
			return hostResult{err: serr}
		}
		return hostResult{}

	case opListTools:
		names, err := inv.lookupTools(ctx, req.server)
		if err != nil {
			return hostResult{err: err}
		}
		values := make([]interface{}, len(names))
		for i, name := range names {
			values[i] = name
		}
		return hostResult{value: values}

	case opCallTool:
		return inv.dispatchCallTool(ctx, req)

	case opWriteFile:
		return inv.dispatchWriteFile(ctx, req)

	default:
		return hostResult{err: NewScriptError(ErrorKindBridgeViolation, "unknown host operation %d", req.op)}
	}
}

func (inv *Invocation) lookupTools(ctx context.Context, server string) ([]string, *ScriptError) {
	if inv.tools == nil {
		return nil, NewScriptError(ErrorKindUnknownServer, "no tool servers are configured")
	}
	names, err := inv.tools.ListTools(ctx, server)
	if err != nil {
		return nil, inv.mapToolError(ctx, err)
	}
	return names, nil
}

func (inv *Invocation) dispatchCallTool(ctx context.Context, req *hostRequest) hostResult {
	callID := newToolCallID("call")
	title := fmt.Sprintf("%s.%s", req.server, req.tool)

	// The started notice goes out before the server or tool is resolved, so
	// clients see the attempt even when it targets something unknown.
	if serr := inv.emitter.ToolCallStarted(ctx, callID, title, toolKindFor(req.tool), req.args); serr != nil {
		return hostResult{err: serr}
	}

	fail := func(serr *ScriptError) hostResult {
		if ferr := inv.emitter.ToolCallFailed(ctx, callID, serr.Error()); ferr != nil {
			return hostResult{err: ferr}
		}
		return hostResult{err: serr}
	}

	if inv.tools == nil {
		return fail(NewScriptError(ErrorKindUnknownServer, "no tool servers are configured"))
	}

	result, err := inv.tools.CallTool(ctx, req.server, req.tool, req.args)
	if err != nil {
		return fail(inv.mapToolError(ctx, err))
	}
	if result != nil && result.IsError {
		return fail(NewScriptError(ErrorKindToolServer, "%s", toolFailureDetail(result)))
	}

	wire, terr := ResultToWire(result)
	if terr != nil {
		var serr *ScriptError
		if !errors.As(terr, &serr) {
			serr = WrapScriptError(ErrorKindTranslation, terr)
		}
		return fail(serr)
	}

	if serr := inv.emitter.ToolCallCompleted(ctx, callID, renderWire(wire), wire); serr != nil {
		return hostResult{err: serr}
	}
	return hostResult{value: wire}
}

func (inv *Invocation) dispatchWriteFile(ctx context.Context, req *hostRequest) hostResult {
	callID := newToolCallID("write_file")
	rawInput := map[string]interface{}{
		"path":    req.path,
		"content": req.content,
	}

	var failure *ScriptError
	if err := inv.files.WriteFile(req.path, req.content); err != nil {
		failure = WrapScriptError(ErrorKindFileWrite, err)
	}

	if serr := inv.emitter.FileWritten(ctx, callID, req.path, rawInput, failure); serr != nil {
		return hostResult{err: serr}
	}
	if failure != nil {
		return hostResult{err: failure}
	}
	return hostResult{}
}

// mapToolError classifies a tool-server failure into the script error model.
func (inv *Invocation) mapToolError(ctx context.Context, err error) *ScriptError {
	var serverNotFound *mcp.ServerNotFoundError
	if errors.As(err, &serverNotFound) {
		return WrapScriptError(ErrorKindUnknownServer, err)
	}
	var toolNotFound *mcp.ToolNotFoundError
	if errors.As(err, &toolNotFound) {
		return WrapScriptError(ErrorKindUnknownTool, err)
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewScriptError(ErrorKindCancelled, "turn cancelled during tool call")
	}
	return WrapScriptError(ErrorKindToolServer, err)
}

// toolFailureDetail extracts a human-readable message from an IsError result.
func toolFailureDetail(result *sdk.CallToolResult) string {
	for _, content := range result.Content {
		if text, ok := content.(*sdk.TextContent); ok && text.Text != "" {
			return text.Text
		}
	}
	return "tool reported an error"
}

// renderWire produces the client-displayable form of a wire value.
func renderWire(wire interface{}) string {
	switch v := wire.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// toolKindFor guesses a display kind from the tool name. The write kind is
// never guessed here; it is reserved for file-write notices.
func toolKindFor(tool string) ToolKind {
	name := strings.ToLower(tool)
	switch {
	case strings.HasPrefix(name, "read") || strings.HasPrefix(name, "get") || strings.HasPrefix(name, "list"):
		return ToolKindRead
	case strings.HasPrefix(name, "search") || strings.HasPrefix(name, "find") || strings.HasPrefix(name, "query"):
		return ToolKindSearch
	case strings.HasPrefix(name, "run") || strings.HasPrefix(name, "exec"):
		return ToolKindExecute
	default:
		return ToolKindOther
	}
}
