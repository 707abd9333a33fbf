package script

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ToolCallStatus represents the execution status of a tool call in the
// update stream. Aligned with ACP's ToolCallStatus enum.
type ToolCallStatus string

const (
	// ToolCallStatusInProgress indicates the tool call is actively running.
	ToolCallStatusInProgress ToolCallStatus = "in_progress"

	// ToolCallStatusCompleted indicates the tool call finished successfully.
	ToolCallStatusCompleted ToolCallStatus = "completed"

	// ToolCallStatusFailed indicates the tool call failed during execution.
	ToolCallStatusFailed ToolCallStatus = "failed"
)

// ToolKind represents the category of tool being invoked. Helps clients
// choose appropriate icons and UI treatment. Aligned with ACP's ToolKind enum.
type ToolKind string

const (
	// ToolKindRead indicates a tool that reads data (files, APIs, etc.)
	ToolKindRead ToolKind = "read"

	// ToolKindWrite indicates a tool that writes/modifies data
	ToolKindWrite ToolKind = "write"

	// ToolKindExecute indicates a tool that executes commands
	ToolKindExecute ToolKind = "execute"

	// ToolKindSearch indicates a tool that searches for information
	ToolKindSearch ToolKind = "search"

	// ToolKindOther indicates a tool that doesn't fit other categories
	ToolKindOther ToolKind = "other"
)

// ToolCallUpdate is one tool-call lifecycle notice in the update stream.
type ToolCallUpdate struct {
	ID       string
	Title    string
	Kind     ToolKind
	Status   ToolCallStatus
	RawInput map[string]interface{}

	// RawOutput carries the wire-form result for completed calls.
	RawOutput interface{}

	// Output is a client-displayable rendering of the result, or the failure
	// detail for failed calls.
	Output string
}

// UpdateSink is the session collaborator boundary: it delivers stream updates
// to the remote client and reports an error when the channel is gone.
type UpdateSink interface {
	// SendText appends a text fragment to the agent's message.
	SendText(ctx context.Context, text string) error

	// SendToolCall reports a new tool call. The status is usually
	// in_progress, but synthesized notices may arrive already terminal.
	SendToolCall(ctx context.Context, call ToolCallUpdate) error

	// SendToolCallUpdate reports a status transition for an earlier call.
	SendToolCallUpdate(ctx context.Context, call ToolCallUpdate) error
}

// Emitter forwards stream updates in host-call order, one at a time, the
// moment they are produced. Transport failures surface as SessionClosed.
type Emitter struct {
	sink UpdateSink
}

// NewEmitter creates an emitter over a session sink.
func NewEmitter(sink UpdateSink) *Emitter {
	return &Emitter{sink: sink}
}

func (e *Emitter) Text(ctx context.Context, text string) *ScriptError {
	if err := e.sink.SendText(ctx, text); err != nil {
		return WrapScriptError(ErrorKindSessionClosed, err)
	}
	return nil
}

func (e *Emitter) ToolCallStarted(ctx context.Context, id, title string, kind ToolKind, rawInput map[string]interface{}) *ScriptError {
	call := ToolCallUpdate{
		ID:       id,
		Title:    title,
		Kind:     kind,
		Status:   ToolCallStatusInProgress,
		RawInput: rawInput,
	}
	if err := e.sink.SendToolCall(ctx, call); err != nil {
		return WrapScriptError(ErrorKindSessionClosed, err)
	}
	return nil
}

func (e *Emitter) ToolCallCompleted(ctx context.Context, id, output string, rawOutput interface{}) *ScriptError {
	call := ToolCallUpdate{
		ID:        id,
		Status:    ToolCallStatusCompleted,
		Output:    output,
		RawOutput: rawOutput,
	}
	if err := e.sink.SendToolCallUpdate(ctx, call); err != nil {
		return WrapScriptError(ErrorKindSessionClosed, err)
	}
	return nil
}

func (e *Emitter) ToolCallFailed(ctx context.Context, id, detail string) *ScriptError {
	call := ToolCallUpdate{
		ID:     id,
		Status: ToolCallStatusFailed,
		Output: detail,
	}
	if err := e.sink.SendToolCallUpdate(ctx, call); err != nil {
		return WrapScriptError(ErrorKindSessionClosed, err)
	}
	return nil
}

// FileWritten emits the single tool-call-shaped notice describing a file
// write. The notice arrives already terminal (completed or failed) and keeps
// the write_file id prefix and write kind, so clients can tell synthesized
// notices apart from genuine tool calls.
func (e *Emitter) FileWritten(ctx context.Context, id, path string, rawInput map[string]interface{}, failure *ScriptError) *ScriptError {
	call := ToolCallUpdate{
		ID:       id,
		Title:    fmt.Sprintf("write %s", path),
		Kind:     ToolKindWrite,
		RawInput: rawInput,
	}
	if failure != nil {
		call.Status = ToolCallStatusFailed
		call.Output = failure.Error()
	} else {
		call.Status = ToolCallStatusCompleted
		call.Output = fmt.Sprintf("wrote %s", path)
	}
	if err := e.sink.SendToolCall(ctx, call); err != nil {
		return WrapScriptError(ErrorKindSessionClosed, err)
	}
	return nil
}

// newToolCallID returns a session-unique tool call id with the given prefix.
func newToolCallID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
