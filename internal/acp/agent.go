package acp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinylittleshell/gojacp/internal/history"
	"github.com/atinylittleshell/gojacp/internal/script/mcp"
)

// agentProtocolVersion is the ACP protocol version this agent speaks.
const agentProtocolVersion = 1

// AgentOptions configures an Agent.
type AgentOptions struct {
	// Version is the agent's build version, used for logging.
	Version string

	// ConfigServers are MCP servers from the local config file. They are
	// registered into every new session alongside the client-provided ones.
	ConfigServers map[string]mcp.ServerConfig

	// History records invocation turns. Optional.
	History *history.HistoryManager

	// HistoryLimit caps retained history entries after each turn. Zero or
	// negative means unlimited.
	HistoryLimit int

	Logger *zap.Logger
}

// Agent serves the agent side of ACP over a byte stream, usually stdio.
// Requests are read sequentially; prompt turns run on their own goroutines
// so session/cancel notifications can interrupt them.
type Agent struct {
	conn   *Conn
	opts   AgentOptions
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	prompts sync.WaitGroup
}

// NewAgent creates an agent that reads requests from r and writes
// responses and notifications to w.
func NewAgent(r io.Reader, w io.Writer, opts AgentOptions) *Agent {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		conn:     NewConn(r, w, logger),
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Serve processes messages until the stream closes. A clean EOF waits for
// in-flight prompt turns and returns nil.
func (a *Agent) Serve(ctx context.Context) error {
	a.logger.Info("ACP agent started", zap.String("version", a.opts.Version))
	defer a.closeSessions()

	for {
		msg, err := a.conn.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.logger.Info("ACP client disconnected")
				a.cancelAllTurns()
				a.prompts.Wait()
				return nil
			}
			return fmt.Errorf("failed to read ACP message: %w", err)
		}

		switch {
		case msg.IsRequest():
			a.handleRequest(ctx, msg)
		case msg.IsNotification():
			a.handleNotification(msg)
		default:
			a.logger.Debug("ignoring ACP message with no method")
		}
	}
}

func (a *Agent) handleRequest(ctx context.Context, msg *IncomingMessage) {
	switch msg.Method {
	case MethodInitialize:
		a.handleInitialize(msg)
	case MethodSessionNew:
		a.handleSessionNew(msg)
	case MethodSessionLoad:
		a.handleSessionLoad(msg)
	case MethodSessionPrompt:
		a.handleSessionPrompt(ctx, msg)
	default:
		a.logger.Warn("received unknown ACP method", zap.String("method", msg.Method))
		a.sendError(msg.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", msg.Method))
	}
}

func (a *Agent) handleNotification(msg *IncomingMessage) {
	switch msg.Method {
	case MethodSessionCancel:
		var params SessionCancelParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			a.logger.Debug("invalid session/cancel params", zap.Error(err))
			return
		}
		if session := a.session(params.SessionID); session != nil {
			a.logger.Info("cancelling prompt turn", zap.String("sessionId", params.SessionID))
			session.CancelTurn()
		}
	default:
		a.logger.Debug("ignoring unknown ACP notification", zap.String("method", msg.Method))
	}
}

func (a *Agent) handleInitialize(msg *IncomingMessage) {
	var params InitializeParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		a.sendError(msg.ID, CodeInvalidParams, "invalid initialize params")
		return
	}

	a.logger.Info("ACP client connected",
		zap.Int("clientProtocolVersion", params.ProtocolVersion))

	a.sendResult(msg.ID, InitializeResult{
		ProtocolVersion: agentProtocolVersion,
		AgentCapabilities: AgentCapabilities{
			LoadSession: true,
			PromptCapabilities: &PromptCapabilities{
				EmbeddedContext: true,
			},
		},
	})
}

func (a *Agent) handleSessionNew(msg *IncomingMessage) {
	var params SessionNewParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		a.sendError(msg.ID, CodeInvalidParams, "invalid session/new params")
		return
	}

	sessionID := uuid.NewString()
	a.createSession(sessionID, params.Cwd, params.MCPServers)

	a.logger.Info("created session",
		zap.String("sessionId", sessionID),
		zap.String("cwd", params.Cwd))

	a.sendResult(msg.ID, SessionNewResult{SessionID: sessionID})
}

func (a *Agent) handleSessionLoad(msg *IncomingMessage) {
	var params SessionLoadParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		a.sendError(msg.ID, CodeInvalidParams, "invalid session/load params")
		return
	}
	if params.SessionID == "" {
		a.sendError(msg.ID, CodeInvalidParams, "session/load requires a sessionId")
		return
	}

	// Loading replaces any live session with the same id. Earlier turns are
	// not replayed; the session resumes with fresh MCP connections.
	if old := a.session(params.SessionID); old != nil {
		old.Close()
	}
	a.createSession(params.SessionID, params.Cwd, params.MCPServers)

	a.logger.Info("loaded session", zap.String("sessionId", params.SessionID))

	a.sendResult(msg.ID, struct{}{})
}

func (a *Agent) handleSessionPrompt(ctx context.Context, msg *IncomingMessage) {
	var params SessionPromptParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		a.sendError(msg.ID, CodeInvalidParams, "invalid session/prompt params")
		return
	}

	session := a.session(params.SessionID)
	if session == nil {
		a.sendError(msg.ID, CodeInvalidParams, fmt.Sprintf("unknown session: %s", params.SessionID))
		return
	}

	// The turn runs off the read loop so cancel notifications can still be
	// processed while the script executes.
	a.prompts.Add(1)
	go func() {
		defer a.prompts.Done()

		stopReason, err := session.RunPrompt(ctx, params.Prompt)
		if err != nil {
			a.sendError(msg.ID, CodeInvalidRequest, err.Error())
			return
		}
		a.sendResult(msg.ID, SessionPromptResult{StopReason: stopReason})
	}()
}

// createSession builds a session with its own MCP manager. Server
// registration failures are logged and skipped; the affected server simply
// stays unknown to scripts.
func (a *Agent) createSession(id string, cwd string, servers []MCPServer) *Session {
	manager := mcp.NewManager()

	for _, server := range servers {
		cfg := mcp.ServerConfig{
			Command: server.Command,
			Args:    server.Args,
			Env:     server.Env,
			URL:     server.URL,
			Headers: server.Headers,
		}
		if err := manager.RegisterServer(server.Name, cfg); err != nil {
			a.logger.Warn("failed to register MCP server",
				zap.String("server", server.Name),
				zap.Error(err))
		}
	}

	for name, cfg := range a.opts.ConfigServers {
		if err := manager.RegisterServer(name, cfg); err != nil {
			a.logger.Warn("failed to register configured MCP server",
				zap.String("server", name),
				zap.Error(err))
		}
	}

	session := newSession(id, cwd, a.conn, manager, a.opts.History, a.opts.HistoryLimit, a.logger)

	a.mu.Lock()
	a.sessions[id] = session
	a.mu.Unlock()

	return session
}

func (a *Agent) session(id string) *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions[id]
}

// cancelAllTurns aborts every in-flight prompt so a disconnect cannot
// leave Serve waiting on a long-running script.
func (a *Agent) cancelAllTurns() {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, session := range a.sessions {
		sessions = append(sessions, session)
	}
	a.mu.Unlock()

	for _, session := range sessions {
		session.CancelTurn()
	}
}

func (a *Agent) closeSessions() {
	a.mu.Lock()
	sessions := make([]*Session, 0, len(a.sessions))
	for _, session := range a.sessions {
		sessions = append(sessions, session)
	}
	a.sessions = make(map[string]*Session)
	a.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

func (a *Agent) sendResult(id json.RawMessage, result interface{}) {
	if err := a.conn.SendResult(id, result); err != nil {
		a.logger.Error("failed to send ACP response", zap.Error(err))
	}
}

func (a *Agent) sendError(id json.RawMessage, code int, message string) {
	if err := a.conn.SendError(id, code, message); err != nil {
		a.logger.Error("failed to send ACP error response", zap.Error(err))
	}
}
