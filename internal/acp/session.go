package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinylittleshell/gojacp/internal/history"
	"github.com/atinylittleshell/gojacp/internal/script"
	"github.com/atinylittleshell/gojacp/internal/script/mcp"
)

// Session is one conversation with a client. It runs at most one prompt
// turn at a time and streams session/update notifications over the
// connection while the turn's script executes.
type Session struct {
	id           string
	cwd          string
	conn         *Conn
	tools        *mcp.Manager
	history      *history.HistoryManager
	historyLimit int
	logger       *zap.Logger

	mu         sync.Mutex
	turnActive bool
	cancelTurn context.CancelFunc
}

func newSession(
	id string,
	cwd string,
	conn *Conn,
	tools *mcp.Manager,
	hist *history.HistoryManager,
	historyLimit int,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:           id,
		cwd:          cwd,
		conn:         conn,
		tools:        tools,
		history:      hist,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// ID returns the session identifier handed to the client.
func (s *Session) ID() string {
	return s.id
}

// RunPrompt executes one prompt turn to completion and returns the stop
// reason for the session/prompt response. A second prompt while one is in
// flight is an error.
func (s *Session) RunPrompt(ctx context.Context, prompt []PromptContent) (StopReason, error) {
	s.mu.Lock()
	if s.turnActive {
		s.mu.Unlock()
		return "", fmt.Errorf("session %s already has a prompt in flight", s.id)
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.turnActive = true
	s.cancelTurn = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.turnActive = false
		s.cancelTurn = nil
		s.mu.Unlock()
	}()

	source := promptText(prompt)

	// A nil manager must stay a nil interface so tool calls report
	// UnknownServer instead of dereferencing it.
	var tools script.ToolCaller
	if s.tools != nil {
		tools = s.tools
	}

	inv, err := script.NewInvocation(&script.Options{
		Source: source,
		Sink:   s,
		Tools:  tools,
		Files:  script.DirFileWriter{Base: s.cwd},
		Logger: s.logger,
	})
	if err != nil {
		return "", err
	}

	var entry *history.InvocationEntry
	if s.history != nil {
		entry, err = s.history.StartInvocation(s.id, script.ExtractSource(source))
		if err != nil {
			s.logger.Warn("failed to record invocation history", zap.Error(err))
			entry = nil
		}
	}

	outcome := inv.Run(turnCtx)

	stopReason := StopReasonEndTurn
	switch {
	case outcome.Cancelled() || turnCtx.Err() != nil:
		stopReason = StopReasonCancelled
	case outcome.Err != nil:
		// Surface the failure in the message stream before ending the
		// turn. Best effort; the turn still ends normally.
		if serr := s.SendText(context.Background(), fmt.Sprintf("script error: %s", outcome.Err.Error())); serr != nil {
			s.logger.Debug("failed to report script error to client", zap.Error(serr))
		}
	}

	if entry != nil {
		errorKind := ""
		errorDetail := ""
		if outcome.Err != nil {
			errorKind = string(outcome.Err.Kind)
			errorDetail = outcome.Err.Detail
		}
		if _, ferr := s.history.FinishInvocation(entry, string(stopReason), errorKind, errorDetail, outcome.Duration); ferr != nil {
			s.logger.Warn("failed to update invocation history", zap.Error(ferr))
		}
		if s.historyLimit > 0 {
			if ferr := s.history.EnforceRetention(s.historyLimit); ferr != nil {
				s.logger.Debug("failed to enforce history retention", zap.Error(ferr))
			}
		}
	}

	return stopReason, nil
}

// CancelTurn aborts the in-flight prompt turn, if any.
func (s *Session) CancelTurn() {
	s.mu.Lock()
	cancel := s.cancelTurn
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Close cancels any in-flight turn and shuts down the session's MCP
// servers.
func (s *Session) Close() {
	s.CancelTurn()
	if s.tools != nil {
		if err := s.tools.Close(); err != nil {
			s.logger.Debug("failed to close MCP servers", zap.Error(err))
		}
	}
}

// SendText streams a text fragment as an agent_message_chunk update.
func (s *Session) SendText(ctx context.Context, text string) error {
	content, err := json.Marshal(MessageContent{Type: "text", Text: text})
	if err != nil {
		return err
	}
	return s.sendUpdate(SessionUpdatePayload{
		SessionUpdate: SessionUpdateAgentMessageChunk,
		Content:       content,
	})
}

// SendToolCall streams a tool_call update announcing a new call.
func (s *Session) SendToolCall(ctx context.Context, call script.ToolCallUpdate) error {
	content, err := toolCallContent(call)
	if err != nil {
		return err
	}
	payload := SessionUpdatePayload{
		SessionUpdate: SessionUpdateToolCall,
		ToolCallID:    call.ID,
		Title:         call.Title,
		Kind:          string(call.Kind),
		Status:        string(call.Status),
		Content:       content,
	}
	if call.RawInput != nil {
		payload.RawInput = call.RawInput
	}
	return s.sendUpdate(payload)
}

// SendToolCallUpdate streams a tool_call_update for an earlier call.
func (s *Session) SendToolCallUpdate(ctx context.Context, call script.ToolCallUpdate) error {
	content, err := toolCallContent(call)
	if err != nil {
		return err
	}
	payload := SessionUpdatePayload{
		SessionUpdate: SessionUpdateToolCallUpdate,
		ToolCallID:    call.ID,
		Status:        string(call.Status),
		Content:       content,
	}
	if call.RawOutput != nil {
		payload.RawOutput = call.RawOutput
	}
	return s.sendUpdate(payload)
}

func (s *Session) sendUpdate(update SessionUpdatePayload) error {
	return s.conn.SendNotification(MethodSessionUpdate, SessionUpdateParams{
		SessionID: s.id,
		Update:    update,
	})
}

func toolCallContent(call script.ToolCallUpdate) (json.RawMessage, error) {
	if call.Output == "" {
		return nil, nil
	}
	return json.Marshal([]ToolCallContent{{
		Type:    "content",
		Content: &MessageContent{Type: "text", Text: call.Output},
	}})
}

// promptText flattens a prompt's content blocks into the script source.
// Text blocks and embedded resource text are joined with newlines.
func promptText(blocks []PromptContent) string {
	parts := make([]string, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case "resource":
			if block.Resource != nil && block.Resource.Text != "" {
				parts = append(parts, block.Resource.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
