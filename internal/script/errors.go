package script

import "fmt"

// ErrorKind identifies a failure category surfaced to a running script.
// The kind becomes the name of the thrown error value, so scripts can
// distinguish failures with `catch (e) { if (e.name === "UnknownTool") ... }`.
type ErrorKind string

const (
	// ErrorKindSessionClosed indicates the session update channel is gone.
	// Terminal for the invocation: no further output can reach the client.
	ErrorKindSessionClosed ErrorKind = "SessionClosed"

	// ErrorKindUnknownServer indicates the named tool server is not reachable.
	ErrorKindUnknownServer ErrorKind = "UnknownServer"

	// ErrorKindUnknownTool indicates the server does not advertise the tool.
	ErrorKindUnknownTool ErrorKind = "UnknownTool"

	// ErrorKindTranslation indicates a value could not be represented on the
	// wire (or translated back from it).
	ErrorKindTranslation ErrorKind = "TranslationError"

	// ErrorKindToolServer indicates a protocol-level failure reported by the
	// tool server. The detail carries the server-provided message.
	ErrorKindToolServer ErrorKind = "ToolServerError"

	// ErrorKindFileWrite indicates an I/O failure while writing a file.
	ErrorKindFileWrite ErrorKind = "FileWriteError"

	// ErrorKindCancelled indicates the turn was cancelled while a host call
	// was outstanding. Not recoverable: the script is torn down.
	ErrorKindCancelled ErrorKind = "Cancelled"

	// ErrorKindBridgeViolation indicates a bridge invariant was broken (a
	// second outstanding host call, or a double-resolved request). Always an
	// implementation defect; the invocation aborts loudly.
	ErrorKindBridgeViolation ErrorKind = "BridgeInvariantViolation"

	// ErrorKindScript represents a script-level failure that was not raised
	// by a host function: a syntax error, or an uncaught value thrown by the
	// script itself.
	ErrorKindScript ErrorKind = "ScriptError"
)

// ScriptError is a failure crossing the host/script boundary. Recoverable
// kinds are thrown into the script as catchable errors; unrecoverable kinds
// terminate the invocation without further script execution.
type ScriptError struct {
	Kind   ErrorKind
	Detail string
	Cause  error
}

func (e *ScriptError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// Recoverable reports whether a script may catch this error and continue.
func (e *ScriptError) Recoverable() bool {
	switch e.Kind {
	case ErrorKindCancelled, ErrorKindBridgeViolation:
		return false
	default:
		return true
	}
}

// NewScriptError creates a ScriptError with a formatted detail message.
func NewScriptError(kind ErrorKind, format string, args ...interface{}) *ScriptError {
	return &ScriptError{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
}

// WrapScriptError creates a ScriptError carrying an underlying cause.
func WrapScriptError(kind ErrorKind, cause error) *ScriptError {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &ScriptError{
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
