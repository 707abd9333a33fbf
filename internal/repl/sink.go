package repl

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/atinylittleshell/gojacp/internal/script"
)

// programSink delivers stream updates to the playground by injecting messages
// into the running bubbletea program. Delivery cannot fail, so scripts in the
// playground never observe a closed session.
type programSink struct {
	program *tea.Program
}

var _ script.UpdateSink = (*programSink)(nil)

func (s *programSink) SendText(_ context.Context, text string) error {
	if s.program != nil {
		s.program.Send(scriptTextMsg{text: text})
	}
	return nil
}

func (s *programSink) SendToolCall(_ context.Context, call script.ToolCallUpdate) error {
	if s.program != nil {
		s.program.Send(toolCallMsg{call: call})
	}
	return nil
}

func (s *programSink) SendToolCallUpdate(_ context.Context, call script.ToolCallUpdate) error {
	if s.program != nil {
		s.program.Send(toolCallMsg{call: call})
	}
	return nil
}
