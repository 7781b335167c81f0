package breakpoints

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/dap/daptest"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/pkg/types"
)

const fileA = "/src/a.py"

var configDone = internaldap.Capabilities{"supportsConfigurationDoneRequest": true}

type setBreakpointsArgs struct {
	Source struct {
		Name string `json:"name"`
		Path string `json:"path"`
	} `json:"source"`
	Breakpoints []map[string]interface{} `json:"breakpoints"`
}

// echoBreakpoints verifies every requested breakpoint at its requested line.
func echoBreakpoints(args json.RawMessage) (interface{}, error) {
	var a setBreakpointsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	body := dap.SetBreakpointsResponseBody{Breakpoints: []dap.Breakpoint{}}
	for i, bp := range a.Breakpoints {
		body.Breakpoints = append(body.Breakpoints, dap.Breakpoint{
			Id:       i + 1,
			Verified: true,
			Line:     int(bp["line"].(float64)),
		})
	}
	return body, nil
}

func newConnected(t *testing.T, caps internaldap.Capabilities, answers ...string) (*Store, *daptest.FakeConn, *prompt.Scripted) {
	t.Helper()
	p := prompt.NewScripted(answers...)
	s := New(p, prompt.NewChoices(nil))
	conn := daptest.New("conn-a")
	s.AddConnection(conn, caps)
	return s, conn, p
}

// TestToggleBreakpoint_Cycle verifies toggling cycles absent, enabled, disabled, absent.
func TestToggleBreakpoint_Cycle(t *testing.T) {
	s := New(nil, nil)

	s.ToggleBreakpoint(fileA, 10, nil, false)
	bp, ok := s.BreakpointAt(fileA, 10)
	require.True(t, ok)
	assert.Equal(t, types.BreakpointEnabled, bp.State)

	s.ToggleBreakpoint(fileA, 10, nil, false)
	bp, ok = s.BreakpointAt(fileA, 10)
	require.True(t, ok)
	assert.Equal(t, types.BreakpointDisabled, bp.State)

	s.ToggleBreakpoint(fileA, 10, nil, false)
	_, ok = s.BreakpointAt(fileA, 10)
	assert.False(t, ok)
	assert.Empty(t, s.LineBreakpoints(fileA))
}

// TestToggleBreakpoint_ShouldDelete verifies toggling twice with delete restores the original state.
func TestToggleBreakpoint_ShouldDelete(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 3, nil, false)
	before := s.Save()

	s.ToggleBreakpoint(fileA, 10, nil, true)
	s.ToggleBreakpoint(fileA, 10, nil, true)

	assert.Equal(t, before, s.Save())
}

// TestToggleBreakpoint_NormalizesPaths verifies relative and absolute paths address the same breakpoint.
func TestToggleBreakpoint_NormalizesPaths(t *testing.T) {
	s := New(nil, nil)
	abs, err := filepath.Abs("x.go")
	require.NoError(t, err)

	s.ToggleBreakpoint("x.go", 4, nil, false)
	_, ok := s.BreakpointAt(abs, 4)
	assert.True(t, ok)
	assert.Equal(t, []string{abs}, s.Files())
}

// TestSetLineBreakpoint_UpdatesOptions verifies an existing breakpoint takes the new options.
func TestSetLineBreakpoint_UpdatesOptions(t *testing.T) {
	s := New(nil, nil)
	calls := 0
	s.SetLineBreakpoint(fileA, 7, nil, func() { calls++ })
	s.SetLineBreakpoint(fileA, 7, Options{"condition": "x > 1"}, func() { calls++ })

	assert.Equal(t, 2, calls)
	require.Len(t, s.LineBreakpoints(fileA), 1)
	bp, _ := s.BreakpointAt(fileA, 7)
	assert.Equal(t, "x > 1", bp.Options.Condition())

	signs := s.Signs(fileA)
	require.Len(t, signs, 1)
	assert.Equal(t, types.SignConditional, signs[0].Kind)
}

// TestSendBreakpoints_AtMostOneRound verifies overlapping calls fold into one follow-up round.
func TestSendBreakpoints_AtMostOneRound(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 10, nil, false)
	conn := daptest.New("conn-a")
	s.AddConnection(conn, configDone)

	var order []string
	s.SendBreakpoints(func() { order = append(order, "first") })
	require.Len(t, conn.Pending("setBreakpoints"), 1)
	assert.True(t, s.RoundInFlight())

	for i := 0; i < 5; i++ {
		s.SendBreakpoints(func() { order = append(order, "queued") })
	}
	assert.Len(t, conn.Calls("setBreakpoints"), 1)

	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{})
	assert.Equal(t, []string{"first"}, order)
	require.Len(t, conn.Calls("setBreakpoints"), 2)

	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{})
	assert.Len(t, conn.Calls("setBreakpoints"), 2)
	assert.Equal(t, []string{"first", "queued", "queued", "queued", "queued", "queued"}, order)
	assert.False(t, s.RoundInFlight())
}

// TestSendBreakpoints_Payload verifies the request carries enabled breakpoints without local flags.
func TestSendBreakpoints_Payload(t *testing.T) {
	s, conn, _ := newConnected(t, configDone)
	conn.Handle("setBreakpoints", echoBreakpoints)

	s.SetLineBreakpoint(fileA, 5, Options{"condition": "i == 2", "temporary": true}, nil)
	s.ToggleBreakpoint(fileA, 9, nil, false)
	s.ToggleBreakpoint(fileA, 9, nil, false) // disabled
	conn.Drain()

	calls := conn.Calls("setBreakpoints")
	var args setBreakpointsArgs
	require.NoError(t, calls[len(calls)-1].Args(&args))
	assert.Equal(t, fileA, args.Source.Path)
	assert.Equal(t, "a.py", args.Source.Name)
	require.Len(t, args.Breakpoints, 1)
	assert.Equal(t, float64(5), args.Breakpoints[0]["line"])
	assert.Equal(t, "i == 2", args.Breakpoints[0]["condition"])
	assert.NotContains(t, args.Breakpoints[0], "temporary")
}

// TestSendBreakpoints_ClearReachesAdapter verifies a file emptied locally is sent as an empty list.
func TestSendBreakpoints_ClearReachesAdapter(t *testing.T) {
	s, conn, _ := newConnected(t, configDone)
	conn.Handle("setBreakpoints", echoBreakpoints)

	s.ToggleBreakpoint(fileA, 5, nil, false)
	conn.Drain()
	s.ClearBreakpoints()
	conn.Drain()

	calls := conn.Calls("setBreakpoints")
	require.Len(t, calls, 2)
	var args setBreakpointsArgs
	require.NoError(t, calls[1].Args(&args))
	assert.Empty(t, args.Breakpoints)

	// nothing left to clear
	s.SendBreakpoints(nil)
	conn.Drain()
	assert.Len(t, conn.Calls("setBreakpoints"), 2)
}

// TestSendBreakpoints_RecordsServerState verifies verification is recorded per connection.
func TestSendBreakpoints_RecordsServerState(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 10, nil, false)

	a := daptest.New("a")
	b := daptest.New("b")
	s.AddConnection(a, configDone)
	s.AddConnection(b, configDone)
	s.SendBreakpoints(nil)

	a.Succeed(a.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Id: 4, Verified: true, Line: 12}},
	})
	b.Succeed(b.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Verified: false}},
	})

	bp, _ := s.BreakpointAt(fileA, 10)
	assert.Equal(t, &ServerState{Verified: true, Line: 12, ID: 4}, bp.Server["a"])
	assert.Equal(t, &ServerState{}, bp.Server["b"])
	assert.True(t, bp.Verified())
	assert.Equal(t, 12, bp.ReportedLine())
	assert.Equal(t, 10, bp.Line)
}

// TestSendBreakpoints_ShortResponse verifies a short response is tolerated.
func TestSendBreakpoints_ShortResponse(t *testing.T) {
	s, conn, _ := newConnected(t, configDone)
	s.ToggleBreakpoint(fileA, 1, nil, false)
	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{})
	s.ToggleBreakpoint(fileA, 2, nil, false)

	done := false
	s.SendBreakpoints(func() { done = true })
	for _, c := range conn.Pending("setBreakpoints") {
		conn.Succeed(c, dap.SetBreakpointsResponseBody{Breakpoints: []dap.Breakpoint{{Verified: true, Line: 1}}})
	}
	for _, c := range conn.Pending("setBreakpoints") {
		conn.Succeed(c, dap.SetBreakpointsResponseBody{Breakpoints: []dap.Breakpoint{{Verified: true, Line: 1}}})
	}

	assert.True(t, done)
	bp, _ := s.BreakpointAt(fileA, 2)
	assert.Empty(t, bp.Server)
}

// TestTemporaryBreakpoint_Relocated verifies a relocated temporary breakpoint follows the adapter's line.
func TestTemporaryBreakpoint_Relocated(t *testing.T) {
	s, conn, p := newConnected(t, configDone)

	continued := false
	s.SetLineBreakpoint(fileA, 10, Options{"temporary": true}, func() { continued = true })
	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Id: 1, Verified: true, Line: 11}},
	})

	assert.True(t, continued)
	_, ok := s.BreakpointAt(fileA, 10)
	assert.False(t, ok)
	bp, ok := s.BreakpointAt(fileA, 11)
	require.True(t, ok)
	assert.True(t, bp.Options.Temporary())
	assert.Empty(t, p.Messages())

	s.ClearTemporaryBreakpoint(fileA, 11)
	assert.Empty(t, s.LineBreakpoints(fileA))
}

// TestTemporaryBreakpoint_Collision verifies relocation onto an existing breakpoint keeps the old line.
func TestTemporaryBreakpoint_Collision(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 11, nil, false)
	s.SetLineBreakpoint(fileA, 10, Options{"temporary": true}, nil)
	conn := daptest.New("a")
	s.AddConnection(conn, configDone)

	s.SendBreakpoints(nil)
	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Verified: true, Line: 11}, {Verified: true, Line: 11}},
	})

	bp, ok := s.BreakpointAt(fileA, 10)
	require.True(t, ok)
	assert.True(t, bp.Options.Temporary())
	assert.Len(t, s.LineBreakpoints(fileA), 2)
}

// TestTemporaryBreakpoint_Unverified verifies the user is told execution continues without it.
func TestTemporaryBreakpoint_Unverified(t *testing.T) {
	s, conn, p := newConnected(t, configDone)

	s.SetLineBreakpoint(fileA, 10, Options{"temporary": true}, nil)
	conn.Succeed(conn.Pending("setBreakpoints")[0], dap.SetBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Verified: false}},
	})

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "Unable to set temporary breakpoint at line 10")
	_, ok := s.BreakpointAt(fileA, 10)
	assert.True(t, ok)
}

// TestClearTemporaryBreakpoint_KeepsPermanent verifies only temporary breakpoints are consumed.
func TestClearTemporaryBreakpoint_KeepsPermanent(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 3, nil, false)
	s.SetLineBreakpoint(fileA, 4, Options{"temporary": true}, nil)
	s.SetLineBreakpoint(fileA, 5, Options{"temporary": true}, nil)

	s.ClearTemporaryBreakpoint(fileA, 3)
	assert.Len(t, s.LineBreakpoints(fileA), 3)

	s.ClearTemporaryBreakpoints()
	bps := s.LineBreakpoints(fileA)
	require.Len(t, bps, 1)
	assert.Equal(t, 3, bps[0].Line)
}

// TestSendBreakpoints_FailureMessage verifies adapter failures are reported and the round completes.
func TestSendBreakpoints_FailureMessage(t *testing.T) {
	s, conn, p := newConnected(t, configDone)
	done := false
	s.SetLineBreakpoint(fileA, 10, nil, func() { done = true })
	conn.Fail(conn.Pending("setBreakpoints")[0], "no such file")

	assert.True(t, done)
	require.Len(t, p.Messages(), 1)
	assert.Equal(t, "Unable to set breakpoint: no such file", p.Messages()[0].Text)
}

// TestSendBreakpoints_StaleConnection verifies responses for an unregistered connection are ignored.
func TestSendBreakpoints_StaleConnection(t *testing.T) {
	s, conn, p := newConnected(t, configDone)
	s.ToggleBreakpoint(fileA, 10, nil, false)
	c := conn.Pending("setBreakpoints")[0]

	s.ConnectionClosed(conn.ID)
	conn.Fail(c, internaldap.ReasonClosed)

	assert.Empty(t, p.Messages())
	assert.False(t, s.RoundInFlight())
}

// TestFunctionBreakpoints verifies function breakpoints are sent only to adapters that support them.
func TestFunctionBreakpoints(t *testing.T) {
	s := New(nil, nil)
	s.AddFunctionBreakpoint("main.main", Options{"condition": "true"})
	s.ToggleFunctionBreakpoint("main.run", nil)

	with := daptest.New("with")
	without := daptest.New("without")
	s.AddConnection(with, internaldap.Capabilities{"supportsConfigurationDoneRequest": true, "supportsFunctionBreakpoints": true})
	s.AddConnection(without, configDone)
	with.HandleOK("setFunctionBreakpoints", dap.SetFunctionBreakpointsResponseBody{
		Breakpoints: []dap.Breakpoint{{Id: 1, Verified: true}, {Id: 2, Verified: false}},
	})

	s.SendBreakpoints(nil)
	with.Drain()

	assert.Empty(t, without.Calls("setFunctionBreakpoints"))
	calls := with.Calls("setFunctionBreakpoints")
	require.Len(t, calls, 1)
	var args struct {
		Breakpoints []map[string]interface{} `json:"breakpoints"`
	}
	require.NoError(t, calls[0].Args(&args))
	require.Len(t, args.Breakpoints, 2)
	assert.Equal(t, "main.main", args.Breakpoints[0]["name"])
	assert.Equal(t, "true", args.Breakpoints[0]["condition"])

	fns := s.FunctionBreakpoints()
	assert.True(t, fns[0].Server["with"].Verified)

	// toggle cycles enabled, disabled, removed
	s.ToggleFunctionBreakpoint("main.run", nil)
	s.ToggleFunctionBreakpoint("main.run", nil)
	require.Len(t, s.FunctionBreakpoints(), 1)
}

// TestConnectionClosed_PurgesInstructions verifies instruction breakpoints die with their connection.
func TestConnectionClosed_PurgesInstructions(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 10, nil, false)
	a := daptest.New("a")
	caps := internaldap.Capabilities{"supportsConfigurationDoneRequest": true, "supportsInstructionBreakpoints": true}
	s.AddConnection(a, caps)
	a.Handle("setBreakpoints", echoBreakpoints)
	a.HandleOK("setInstructionBreakpoints", map[string]interface{}{
		"breakpoints": []dap.Breakpoint{{Verified: true}},
	})

	s.ToggleInstructionBreakpoint("a", "0x401000", fileA, 20, nil)
	a.Drain()
	bp, _ := s.BreakpointAt(fileA, 10)
	require.True(t, bp.Verified())

	calls := a.Calls("setInstructionBreakpoints")
	require.NotEmpty(t, calls)
	var args struct {
		Breakpoints []map[string]interface{} `json:"breakpoints"`
	}
	require.NoError(t, calls[len(calls)-1].Args(&args))
	require.Len(t, args.Breakpoints, 1)
	assert.Equal(t, "0x401000", args.Breakpoints[0]["instructionReference"])

	list := s.BreakpointsAsList()
	require.Len(t, list, 2)
	assert.Equal(t, types.BreakpointKindInstruction, list[1].Kind)

	s.ConnectionClosed("a")

	bps := s.LineBreakpoints(fileA)
	require.Len(t, bps, 1)
	assert.Equal(t, 10, bps[0].Line)
	assert.Nil(t, bps[0].Instruction)
	assert.Empty(t, bps[0].Server)
	assert.False(t, s.Connected())
}

// TestInstructionBreakpoints_ScopedToOwner verifies other connections never receive them.
func TestInstructionBreakpoints_ScopedToOwner(t *testing.T) {
	s := New(nil, nil)
	caps := internaldap.Capabilities{"supportsConfigurationDoneRequest": true, "supportsInstructionBreakpoints": true}
	a, b := daptest.New("a"), daptest.New("b")
	s.AddConnection(a, caps)
	s.AddConnection(b, caps)

	s.ToggleInstructionBreakpoint("a", "0x10", fileA, 1, nil)

	assert.Len(t, a.Calls("setInstructionBreakpoints"), 1)
	assert.Empty(t, b.Calls("setInstructionBreakpoints"))
}

// TestSaveLoad_RoundTrip verifies Load(Save()) reproduces the breakpoint set.
func TestSaveLoad_RoundTrip(t *testing.T) {
	s := New(nil, nil)
	s.ToggleBreakpoint(fileA, 10, Options{"condition": "x"}, false)
	s.ToggleBreakpoint(fileA, 12, nil, false)
	s.ToggleBreakpoint(fileA, 12, nil, false)
	s.ToggleBreakpoint("/src/b.py", 1, nil, false)
	s.SetLineBreakpoint(fileA, 30, Options{"temporary": true}, nil)
	s.AddFunctionBreakpoint("main", nil)
	s.exceptions = NewExceptionBreakpoints("uncaught")

	saved := s.Save()
	assert.Len(t, saved.Line[fileA], 2)
	assert.Equal(t, []string{"uncaught"}, saved.Exception)

	path := filepath.Join(t.TempDir(), "breakpoints.json")
	require.NoError(t, s.SaveFile(path))

	loaded := New(nil, nil)
	require.NoError(t, loaded.LoadFile(path))
	assert.Equal(t, saved, loaded.Save())

	bp, ok := loaded.BreakpointAt(fileA, 12)
	require.True(t, ok)
	assert.Equal(t, types.BreakpointDisabled, bp.State)
	assert.Equal(t, []string{"uncaught"}, loaded.ExceptionFilters())
}

// TestSave_ExceptionsNotNegotiated verifies exceptions are saved as null until negotiated.
func TestSave_ExceptionsNotNegotiated(t *testing.T) {
	s := New(nil, nil)
	data, err := json.Marshal(s.Save())
	require.NoError(t, err)
	assert.JSONEq(t, `{"line":{},"function":[],"exception":null}`, string(data))
}

// TestLoad_ReplacesAndSendsEmpty verifies loading clears files no longer present on the adapter.
func TestLoad_ReplacesAndSendsEmpty(t *testing.T) {
	s, conn, _ := newConnected(t, configDone)
	conn.Handle("setBreakpoints", echoBreakpoints)
	s.ToggleBreakpoint(fileA, 10, nil, false)
	conn.Drain()

	s.Load(SavedState{Line: map[string][]SavedLine{"/src/c.py": {{Line: 2, State: types.BreakpointEnabled}}}})
	conn.Drain()

	paths := map[string]int{}
	for _, c := range conn.Calls("setBreakpoints")[1:] {
		var args setBreakpointsArgs
		require.NoError(t, c.Args(&args))
		paths[args.Source.Path] = len(args.Breakpoints)
	}
	assert.Equal(t, map[string]int{fileA: 0, "/src/c.py": 1}, paths)
}
