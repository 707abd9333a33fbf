package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinylittleshell/gojacp/internal/script/mcp"
)

type recordedUpdate struct {
	kind string // "text", "tool_call", "tool_call_update"
	text string
	call ToolCallUpdate
}

// captureSink records updates in arrival order. Setting failAfter makes
// every send past that count fail, simulating a dropped session channel.
type captureSink struct {
	mu        sync.Mutex
	updates   []recordedUpdate
	failAfter int
	sent      int
	notify    chan string
}

func (s *captureSink) record(u recordedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	if s.failAfter > 0 && s.sent > s.failAfter {
		return errors.New("session channel is gone")
	}
	s.updates = append(s.updates, u)
	return nil
}

func (s *captureSink) SendText(ctx context.Context, text string) error {
	err := s.record(recordedUpdate{kind: "text", text: text})
	if err == nil && s.notify != nil {
		s.notify <- text
	}
	return err
}

func (s *captureSink) SendToolCall(ctx context.Context, call ToolCallUpdate) error {
	return s.record(recordedUpdate{kind: "tool_call", call: call})
}

func (s *captureSink) SendToolCallUpdate(ctx context.Context, call ToolCallUpdate) error {
	return s.record(recordedUpdate{kind: "tool_call_update", call: call})
}

func (s *captureSink) recorded() []recordedUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]recordedUpdate, len(s.updates))
	copy(out, s.updates)
	return out
}

// fakeTools serves a static tool table and delegates calls to a handler.
type fakeTools struct {
	tools map[string][]string
	call  func(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error)
}

func (f *fakeTools) ListTools(ctx context.Context, server string) ([]string, error) {
	names, ok := f.tools[server]
	if !ok {
		return nil, &mcp.ServerNotFoundError{Name: server}
	}
	return names, nil
}

func (f *fakeTools) CallTool(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error) {
	names, ok := f.tools[server]
	if !ok {
		return nil, &mcp.ServerNotFoundError{Name: server}
	}
	found := false
	for _, name := range names {
		if name == tool {
			found = true
		}
	}
	if !found {
		return nil, &mcp.ToolNotFoundError{Server: server, Tool: tool}
	}
	return f.call(ctx, server, tool, args)
}

func echoTools() *fakeTools {
	return &fakeTools{
		tools: map[string][]string{
			"srv": {"echo", "read_file"},
		},
		call: func(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error) {
			return &sdk.CallToolResult{StructuredContent: args}, nil
		},
	}
}

type failWriter struct {
	err error
}

func (w failWriter) WriteFile(path string, content string) error {
	return w.err
}

func runScript(t *testing.T, src string, sink UpdateSink, tools ToolCaller, files FileWriter) *Outcome {
	t.Helper()
	inv, err := NewInvocation(&Options{
		Source: src,
		Sink:   sink,
		Tools:  tools,
		Files:  files,
	})
	require.NoError(t, err)
	return inv.Run(context.Background())
}

func TestRunEmitsTextInOrder(t *testing.T) {
	sink := &captureSink{}
	outcome := runScript(t, `say("one"); say("two"); say("three");`, sink, nil, nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, "one", updates[0].text)
	assert.Equal(t, "two", updates[1].text)
	assert.Equal(t, "three", updates[2].text)
}

func TestRunExecutesOnlyTheDelimitedRegion(t *testing.T) {
	sink := &captureSink{}
	prompt := `Please run this for me:
<userRequest>
say("from script");
</userRequest>
Thanks!`
	outcome := runScript(t, prompt, sink, nil, nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 1)
	assert.Equal(t, "from script", updates[0].text)
}

func TestToolCallBracketsArriveInCallOrder(t *testing.T) {
	sink := &captureSink{}
	src := `
say("a");
var r = mcp.callTool("srv", "echo", {message: "hi"});
say("b " + r.message);
`
	outcome := runScript(t, src, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 4)

	assert.Equal(t, "text", updates[0].kind)
	assert.Equal(t, "a", updates[0].text)

	assert.Equal(t, "tool_call", updates[1].kind)
	assert.Equal(t, ToolCallStatusInProgress, updates[1].call.Status)
	assert.Equal(t, "srv.echo", updates[1].call.Title)
	assert.True(t, strings.HasPrefix(updates[1].call.ID, "call_"))
	assert.Equal(t, "hi", updates[1].call.RawInput["message"])
	assert.NotEqual(t, ToolKindWrite, updates[1].call.Kind)

	assert.Equal(t, "tool_call_update", updates[2].kind)
	assert.Equal(t, ToolCallStatusCompleted, updates[2].call.Status)
	assert.Equal(t, updates[1].call.ID, updates[2].call.ID)

	assert.Equal(t, "text", updates[3].kind)
	assert.Equal(t, "b hi", updates[3].text)
}

func TestListToolsEmitsNoUpdates(t *testing.T) {
	sink := &captureSink{}
	outcome := runScript(t, `say(mcp.listTools("srv").join(","));`, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 1)
	assert.Equal(t, "text", updates[0].kind)
	assert.Equal(t, "echo,read_file", updates[0].text)
}

func TestUnknownToolFailsTheStartedCall(t *testing.T) {
	sink := &captureSink{}
	src := `
try {
  mcp.callTool("srv", "missing", {});
} catch (e) {
  say("caught " + e.name);
}
`
	outcome := runScript(t, src, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, "tool_call", updates[0].kind)
	assert.Equal(t, ToolCallStatusInProgress, updates[0].call.Status)
	assert.Equal(t, "tool_call_update", updates[1].kind)
	assert.Equal(t, ToolCallStatusFailed, updates[1].call.Status)
	assert.Equal(t, updates[0].call.ID, updates[1].call.ID)
	assert.Equal(t, "caught UnknownTool", updates[2].text)
}

func TestUnknownServerIsCatchable(t *testing.T) {
	sink := &captureSink{}
	src := `
try {
  mcp.callTool("nope", "echo", {});
} catch (e) {
  say("caught " + e.name);
}
`
	outcome := runScript(t, src, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, ToolCallStatusInProgress, updates[0].call.Status)
	assert.Equal(t, ToolCallStatusFailed, updates[1].call.Status)
	assert.Equal(t, "caught UnknownServer", updates[2].text)
}

func TestUntranslatableArgumentsProduceNoToolUpdates(t *testing.T) {
	sink := &captureSink{}
	src := `
try {
  mcp.callTool("srv", "echo", {fn: function () {}});
} catch (e) {
  say("caught " + e.name);
}
`
	outcome := runScript(t, src, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 1)
	assert.Equal(t, "text", updates[0].kind)
	assert.Equal(t, "caught TranslationError", updates[0].text)
}

func TestToolErrorResultRaisesToolServerError(t *testing.T) {
	sink := &captureSink{}
	tools := echoTools()
	tools.call = func(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error) {
		return &sdk.CallToolResult{
			IsError: true,
			Content: []sdk.Content{&sdk.TextContent{Text: "disk on fire"}},
		}, nil
	}

	src := `
try {
  mcp.callTool("srv", "echo", {});
} catch (e) {
  say(e.name + ": " + e.message);
}
`
	outcome := runScript(t, src, sink, tools, nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, ToolCallStatusFailed, updates[1].call.Status)
	assert.Contains(t, updates[1].call.Output, "disk on fire")
	assert.Equal(t, "ToolServerError: disk on fire", updates[2].text)
}

func TestScriptValuesRoundTripThroughToolCalls(t *testing.T) {
	sink := &captureSink{}
	src := `
var sent = {n: 42, s: "x", list: [1, 2, 3], nested: {ok: true}};
var got = mcp.callTool("srv", "echo", sent);
if (got.n !== 42 || got.s !== "x" || got.list.length !== 3 || got.list[2] !== 3 || got.nested.ok !== true) {
  throw new Error("round trip mismatch: " + JSON.stringify(got));
}
say("match");
`
	outcome := runScript(t, src, sink, echoTools(), nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, "match", updates[2].text)
}

func TestWriteFileEmitsSingleTerminalNotice(t *testing.T) {
	sink := &captureSink{}
	dir := t.TempDir()
	outcome := runScript(t, `writeFile("out/result.txt", "payload"); say("done");`, sink, nil, DirFileWriter{Base: dir})

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 2)

	notice := updates[0]
	assert.Equal(t, "tool_call", notice.kind)
	assert.Equal(t, ToolCallStatusCompleted, notice.call.Status)
	assert.Equal(t, ToolKindWrite, notice.call.Kind)
	assert.True(t, strings.HasPrefix(notice.call.ID, "write_file_"))
	assert.Equal(t, "out/result.txt", notice.call.RawInput["path"])
	assert.Equal(t, "payload", notice.call.RawInput["content"])

	data, err := os.ReadFile(filepath.Join(dir, "out", "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestFailedWriteEmitsExactlyOneFailedNotice(t *testing.T) {
	sink := &captureSink{}
	files := failWriter{err: errors.New("read-only filesystem")}
	src := `
try {
  writeFile("out.txt", "data");
} catch (e) {
  say("caught " + e.name);
}
say("still running");
`
	outcome := runScript(t, src, sink, nil, files)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)

	notice := updates[0]
	assert.Equal(t, "tool_call", notice.kind)
	assert.Equal(t, ToolCallStatusFailed, notice.call.Status)
	assert.Contains(t, notice.call.Output, "read-only filesystem")
	assert.Equal(t, "caught FileWriteError", updates[1].text)
	assert.Equal(t, "still running", updates[2].text)
}

func TestCancellationDuringToolCall(t *testing.T) {
	sink := &captureSink{}
	started := make(chan struct{})
	tools := echoTools()
	tools.call = func(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	inv, err := NewInvocation(&Options{
		Source: `say("before"); mcp.callTool("srv", "echo", {}); say("after");`,
		Sink:   sink,
		Tools:  tools,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	outcome := inv.Run(ctx)
	require.NotNil(t, outcome.Err)
	assert.Equal(t, ErrorKindCancelled, outcome.Err.Kind)
	assert.True(t, outcome.Cancelled())

	for _, u := range sink.recorded() {
		assert.NotEqual(t, "after", u.text, "script continued past a cancelled call")
	}
}

func TestCancellationInterruptsComputation(t *testing.T) {
	sink := &captureSink{notify: make(chan string, 4)}
	inv, err := NewInvocation(&Options{
		Source: `say("x"); while (true) {}`,
		Sink:   sink,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-sink.notify
		cancel()
	}()

	done := make(chan *Outcome, 1)
	go func() {
		done <- inv.Run(ctx)
	}()

	select {
	case outcome := <-done:
		require.NotNil(t, outcome.Err)
		assert.Equal(t, ErrorKindCancelled, outcome.Err.Kind)
	case <-time.After(10 * time.Second):
		t.Fatal("cancellation did not interrupt the script")
	}
}

func TestUncaughtScriptErrorSurfaces(t *testing.T) {
	sink := &captureSink{}
	outcome := runScript(t, `throw new Error("bespoke failure");`, sink, nil, nil)

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ErrorKindScript, outcome.Err.Kind)
	assert.Contains(t, outcome.Err.Detail, "bespoke failure")
}

func TestSyntaxErrorSurfaces(t *testing.T) {
	sink := &captureSink{}
	outcome := runScript(t, `say("unterminated;`, sink, nil, nil)

	require.NotNil(t, outcome.Err)
	assert.Equal(t, ErrorKindScript, outcome.Err.Kind)
}

func TestSessionClosedIsCatchableButFinal(t *testing.T) {
	sink := &captureSink{failAfter: 1}
	src := `
say("one");
var name = "";
try {
  say("two");
} catch (e) {
  name = e.name;
}
throw new Error("observed:" + name);
`
	outcome := runScript(t, src, sink, nil, nil)

	require.NotNil(t, outcome.Err)
	assert.Contains(t, outcome.Err.Detail, "observed:SessionClosed")

	updates := sink.recorded()
	require.Len(t, updates, 1)
	assert.Equal(t, "one", updates[0].text)
}

func TestInvocationsDoNotShareState(t *testing.T) {
	first := &captureSink{}
	outcome := runScript(t, `var leak = "polluted"; say(leak);`, first, nil, nil)
	require.Nil(t, outcome.Err)

	second := &captureSink{}
	outcome = runScript(t, `say(typeof leak);`, second, nil, nil)
	require.Nil(t, outcome.Err)

	updates := second.recorded()
	require.Len(t, updates, 1)
	assert.Equal(t, "undefined", updates[0].text)
}

func TestHostFunctionsRejectBadArguments(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"say with number", `try { say(42); } catch (e) { say("name:" + e.name); }`},
		{"callTool missing tool", `try { mcp.callTool("srv"); } catch (e) { say("name:" + e.name); }`},
		{"listTools missing server", `try { mcp.listTools(); } catch (e) { say("name:" + e.name); }`},
		{"writeFile missing content", `try { writeFile("p"); } catch (e) { say("name:" + e.name); }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &captureSink{}
			outcome := runScript(t, tt.src, sink, echoTools(), failWriter{err: errors.New("unused")})
			require.Nil(t, outcome.Err)

			updates := sink.recorded()
			require.Len(t, updates, 1)
			assert.Equal(t, "name:TypeError", updates[0].text)
		})
	}
}

func TestToolCallResultValueMatchesUpdatePayload(t *testing.T) {
	sink := &captureSink{}
	tools := echoTools()
	tools.call = func(ctx context.Context, server, tool string, args map[string]interface{}) (*sdk.CallToolResult, error) {
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: "plain text result"}},
		}, nil
	}

	outcome := runScript(t, `say(mcp.callTool("srv", "echo", {}));`, sink, tools, nil)

	require.Nil(t, outcome.Err)
	updates := sink.recorded()
	require.Len(t, updates, 3)
	assert.Equal(t, "plain text result", updates[1].call.Output)
	assert.Equal(t, "plain text result", updates[2].text)
}

func TestToolKindNeverGuessesWrite(t *testing.T) {
	tests := []struct {
		tool string
		want ToolKind
	}{
		{"read_file", ToolKindRead},
		{"get_time", ToolKindRead},
		{"list_directory", ToolKindRead},
		{"search_docs", ToolKindSearch},
		{"find_symbol", ToolKindSearch},
		{"run_command", ToolKindExecute},
		{"exec_shell", ToolKindExecute},
		{"write_file", ToolKindOther},
		{"frobnicate", ToolKindOther},
	}

	for _, tt := range tests {
		got := toolKindFor(tt.tool)
		assert.Equal(t, tt.want, got, "tool %s", tt.tool)
		assert.NotEqual(t, ToolKindWrite, got, "tool %s", tt.tool)
	}
}

func TestConcurrentInvocationsAreIndependent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sink := &captureSink{}
			inv, err := NewInvocation(&Options{
				Source: fmt.Sprintf(`say("worker %d");`, n),
				Sink:   sink,
			})
			if !assert.NoError(t, err) {
				return
			}
			outcome := inv.Run(context.Background())
			assert.Nil(t, outcome.Err)
			updates := sink.recorded()
			if assert.Len(t, updates, 1) {
				assert.Equal(t, fmt.Sprintf("worker %d", n), updates[0].text)
			}
		}(i)
	}
	wg.Wait()
}
