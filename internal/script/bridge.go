package script

import (
	"sync"
	"sync/atomic"
)

// hostOp tags the operation a host function is requesting.
type hostOp int

const (
	opEmitText hostOp = iota
	opListTools
	opCallTool
	opWriteFile
)

func (op hostOp) String() string {
	switch op {
	case opEmitText:
		return "say"
	case opListTools:
		return "mcp.listTools"
	case opCallTool:
		return "mcp.callTool"
	case opWriteFile:
		return "writeFile"
	default:
		return "unknown"
	}
}

// hostRequest carries one pending host call across the bridge. Arguments are
// already translated to collaborator-native form before the request is built.
type hostRequest struct {
	op hostOp

	text string

	server string
	tool   string
	args   map[string]interface{}

	path    string
	content string

	// reply receives exactly one hostResult. Capacity 1 so resolve never
	// blocks even if the script side has already been interrupted.
	reply chan hostResult

	resolved atomic.Bool
}

// resolve delivers the result for this request. Only the first call wins;
// later calls are ignored and report false.
func (r *hostRequest) resolve(res hostResult) bool {
	if !r.resolved.CompareAndSwap(false, true) {
		return false
	}
	r.reply <- res
	return true
}

// hostResult is the outcome of one host call: a wire-form value or a typed
// failure, never both.
type hostResult struct {
	value interface{}
	err   *ScriptError
}

// Bridge is the rendezvous point between the script goroutine and the
// invocation driver. The script side hands over at most one request at a
// time and blocks until the driver resolves it.
type Bridge struct {
	calls chan *hostRequest

	done      chan struct{}
	closeOnce sync.Once

	inFlight atomic.Int32
}

func newBridge() *Bridge {
	return &Bridge{
		calls: make(chan *hostRequest),
		done:  make(chan struct{}),
	}
}

// Calls exposes the request stream to the driver.
func (b *Bridge) Calls() <-chan *hostRequest {
	return b.calls
}

// Close marks the driver as gone. Host calls made after this fail
// immediately instead of blocking forever.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Call performs the rendezvous: hand the request to the driver and block
// until its single result arrives. A second call arriving while one is
// outstanding is a host-side defect and fails with BridgeInvariantViolation.
func (b *Bridge) Call(req *hostRequest) hostResult {
	if !b.inFlight.CompareAndSwap(0, 1) {
		return hostResult{err: NewScriptError(
			ErrorKindBridgeViolation,
			"host call %s arrived while another call was outstanding", req.op,
		)}
	}
	defer b.inFlight.Store(0)

	req.reply = make(chan hostResult, 1)
	select {
	case b.calls <- req:
	case <-b.done:
		return hostResult{err: NewScriptError(ErrorKindCancelled, "invocation is shutting down")}
	}
	return <-req.reply
}
