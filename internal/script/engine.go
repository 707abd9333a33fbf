package script

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// terminalAbort unwinds the script runtime for failures the script must not
// be able to catch. It is deliberately a plain Go value: the runtime treats
// it as a foreign panic and propagates it out of RunProgram.
type terminalAbort struct {
	err *ScriptError
}

// Engine owns one script runtime with the host functions installed. An
// engine serves exactly one invocation; the host function table is built at
// construction and never shared.
type Engine struct {
	rt         *goja.Runtime
	translator *Translator
	bridge     *Bridge
}

// NewEngine creates a runtime bound to the given bridge and installs the
// host functions: say, mcp.listTools, mcp.callTool, writeFile.
func NewEngine(bridge *Bridge) (*Engine, error) {
	rt := goja.New()
	e := &Engine{
		rt:         rt,
		translator: NewTranslator(rt),
		bridge:     bridge,
	}

	if err := rt.Set("say", e.say); err != nil {
		return nil, fmt.Errorf("failed to install say: %w", err)
	}

	mcpObj := rt.NewObject()
	if err := mcpObj.Set("listTools", e.listTools); err != nil {
		return nil, fmt.Errorf("failed to install mcp.listTools: %w", err)
	}
	if err := mcpObj.Set("callTool", e.callTool); err != nil {
		return nil, fmt.Errorf("failed to install mcp.callTool: %w", err)
	}
	if err := rt.Set("mcp", mcpObj); err != nil {
		return nil, fmt.Errorf("failed to install mcp: %w", err)
	}

	if err := rt.Set("writeFile", e.writeFile); err != nil {
		return nil, fmt.Errorf("failed to install writeFile: %w", err)
	}

	return e, nil
}

// Interrupt aborts script execution at the next instruction boundary. Safe
// to call from the driver goroutine while the script is running.
func (e *Engine) Interrupt(err *ScriptError) {
	e.rt.Interrupt(err)
}

// Run compiles and executes the script source, mapping every way the
// runtime can fail into a ScriptError.
func (e *Engine) Run(src string) (serr *ScriptError) {
	defer func() {
		if r := recover(); r != nil {
			ta, ok := r.(terminalAbort)
			if !ok {
				panic(r)
			}
			serr = ta.err
		}
	}()

	prog, err := goja.Compile("script", src, false)
	if err != nil {
		return &ScriptError{Kind: ErrorKindScript, Detail: err.Error(), Cause: err}
	}

	if _, err := e.rt.RunProgram(prog); err != nil {
		return e.mapRunError(err)
	}
	return nil
}

func (e *Engine) mapRunError(err error) *ScriptError {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		if herr := hostErrorFrom(exc.Value()); herr != nil {
			return herr
		}
		return &ScriptError{Kind: ErrorKindScript, Detail: exc.Error(), Cause: err}
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if herr, ok := interrupted.Value().(*ScriptError); ok {
			return herr
		}
		return &ScriptError{Kind: ErrorKindScript, Detail: interrupted.Error(), Cause: err}
	}

	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &ScriptError{Kind: ErrorKindScript, Detail: "stack overflow", Cause: err}
	}

	return &ScriptError{Kind: ErrorKindScript, Detail: err.Error(), Cause: err}
}

// hostErrorFrom recovers the ScriptError attached to a thrown host error
// object, if the thrown value is one.
func hostErrorFrom(v goja.Value) *ScriptError {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	herr := obj.Get("hostError")
	if herr == nil {
		return nil
	}
	serr, ok := herr.Export().(*ScriptError)
	if !ok {
		return nil
	}
	return serr
}

// throw raises err inside the script. Recoverable kinds become catchable
// error objects named after the kind; unrecoverable kinds abort the runtime.
func (e *Engine) throw(err *ScriptError) {
	if !err.Recoverable() {
		panic(terminalAbort{err: err})
	}
	panic(e.newHostErrorValue(err))
}

// newHostErrorValue builds a real Error instance so scripts get stack traces
// and instanceof Error, with the kind as its name and the originating
// ScriptError attached for round-tripping.
func (e *Engine) newHostErrorValue(err *ScriptError) goja.Value {
	ctor := e.rt.Get("Error")
	obj, nerr := e.rt.New(ctor, e.rt.ToValue(err.Detail))
	if nerr != nil {
		return e.rt.ToValue(err.Error())
	}
	_ = obj.Set("name", string(err.Kind))
	_ = obj.Set("hostError", e.rt.ToValue(err))
	return obj
}

// call performs one bridge rendezvous and translates the wire-form result
// back into a script value. Failures are thrown into the script.
func (e *Engine) call(req *hostRequest) goja.Value {
	res := e.bridge.Call(req)
	if res.err != nil {
		e.throw(res.err)
	}
	if res.value == nil {
		return goja.Undefined()
	}
	v, err := e.translator.FromWire(res.value)
	if err != nil {
		var serr *ScriptError
		if !errors.As(err, &serr) {
			serr = WrapScriptError(ErrorKindTranslation, err)
		}
		e.throw(serr)
	}
	return v
}

func (e *Engine) say(fc goja.FunctionCall) goja.Value {
	if len(fc.Arguments) < 1 {
		panic(e.rt.NewTypeError("say requires a text argument"))
	}
	text, ok := fc.Argument(0).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("say requires a string argument"))
	}
	return e.call(&hostRequest{op: opEmitText, text: text})
}

func (e *Engine) listTools(fc goja.FunctionCall) goja.Value {
	if len(fc.Arguments) < 1 {
		panic(e.rt.NewTypeError("mcp.listTools requires a server name"))
	}
	server, ok := fc.Argument(0).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("mcp.listTools requires a string server name"))
	}
	return e.call(&hostRequest{op: opListTools, server: server})
}

func (e *Engine) callTool(fc goja.FunctionCall) goja.Value {
	if len(fc.Arguments) < 2 {
		panic(e.rt.NewTypeError("mcp.callTool requires a server name and a tool name"))
	}
	server, ok := fc.Argument(0).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("mcp.callTool requires a string server name"))
	}
	tool, ok := fc.Argument(1).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("mcp.callTool requires a string tool name"))
	}

	// Arguments are translated before anything crosses the bridge, so a
	// value that cannot be represented on the wire fails the call without
	// producing any stream updates.
	args, err := e.translator.ToWireMap(fc.Argument(2))
	if err != nil {
		var serr *ScriptError
		if !errors.As(err, &serr) {
			serr = WrapScriptError(ErrorKindTranslation, err)
		}
		e.throw(serr)
	}

	return e.call(&hostRequest{op: opCallTool, server: server, tool: tool, args: args})
}

func (e *Engine) writeFile(fc goja.FunctionCall) goja.Value {
	if len(fc.Arguments) < 2 {
		panic(e.rt.NewTypeError("writeFile requires a path and content"))
	}
	path, ok := fc.Argument(0).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("writeFile requires a string path"))
	}
	content, ok := fc.Argument(1).Export().(string)
	if !ok {
		panic(e.rt.NewTypeError("writeFile requires string content"))
	}
	return e.call(&hostRequest{op: opWriteFile, path: path, content: content})
}
