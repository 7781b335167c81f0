package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dapctl/internal/breakpoints"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/internal/session"
	"github.com/ctagard/dapctl/pkg/types"
)

const pollInterval = 50 * time.Millisecond

// Session Handlers

func (s *Server) handleDebugStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanSpawn() && !s.config.CanAttach() {
		return mcp.NewToolResultError(errors.PermissionDenied("start", string(s.config.Mode)).Error()), nil
	}

	vars, err := parseVariables(request.GetString("variables", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if name := request.GetString("configuration", ""); name != "" {
		vars[launchconfig.ConfigurationVariable] = name
	}

	sess, err := s.startTarget(request.GetString("session", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// nobody can answer a prompt here: defaults are taken and anything else
	// is reported as missing
	p := prompt.NewScripted()
	p.UseDefaults = true
	opts := session.StartOptions{
		CurrentFile:     request.GetString("currentFile", ""),
		ConfigFile:      request.GetString("configFile", ""),
		LaunchVariables: vars,
		Prompter:        p,
		CollectMissing:  true,
	}

	var startErr error
	if err := s.manager.Do(func() { startErr = sess.Start(ctx, opts) }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if startErr != nil {
		return s.errorResult(startErr), nil
	}

	s.waitFor(ctx, sess, request, types.SessionStateReady, types.SessionStatePaused, types.SessionStateIdle)
	return s.sessionResult(sess, nil)
}

// startTarget returns the root session called name, creating it if needed.
// Without a name the active session is used.
func (s *Server) startTarget(name string) (*session.Session, error) {
	if name != "" {
		if sess, ok := s.manager.FindSessionByName(name); ok && sess.Parent() == nil {
			return sess, nil
		}
		return s.manager.NewSession(name)
	}
	if sess := s.manager.Active(); sess != nil {
		return sess, nil
	}
	return s.manager.NewSession("")
}

func parseVariables(raw string) (map[string]string, error) {
	vars := make(map[string]string)
	if raw == "" {
		return vars, nil
	}
	var values map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.InvalidJSON("variables", err, `{"port": "5678", "program": "main.py"}`)
	}
	for k, v := range values {
		if str, ok := v.(string); ok {
			vars[k] = str
			continue
		}
		vars[k] = fmt.Sprint(v)
	}
	return vars, nil
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	terminate := request.GetBool("terminateDebuggee", false)

	var stopErr error
	err = s.manager.Do(func() {
		// the terminate question is asked synchronously by Stop
		s.prompter.ConfirmDefault = terminate
		stopErr = sess.Stop()
		s.prompter.ConfirmDefault = false
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if stopErr != nil {
		return s.errorResult(stopErr), nil
	}
	return s.sessionResult(sess, nil)
}

func (s *Server) handleDebugReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.manager.Do(sess.Reset); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.sessionResult(sess, nil)
}

func (s *Server) handleDebugListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var infos []types.SessionInfo
	var active *int
	err := s.manager.Do(func() {
		for _, sess := range s.manager.Sessions() {
			infos = append(infos, sess.Info())
		}
		if a := s.manager.Active(); a != nil {
			id := a.ID()
			active = &id
		}
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if infos == nil {
		infos = []types.SessionInfo{}
	}
	result := map[string]interface{}{"sessions": infos}
	if active != nil {
		result["active"] = *active
	}
	return jsonResult(result)
}

func (s *Server) handleDebugListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := launchconfig.Load(launchconfig.LoadOptions{
		CurrentFile: request.GetString("currentFile", ""),
		ConfigFile:  request.GetString("configFile", ""),
		GadgetDir:   s.config.GadgetDir,
		Builtin:     s.manager.Builtin(),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"configFile":     project.ConfigFile,
		"configurations": project.Summaries(),
	})
}

func (s *Server) handleDebugSnapshot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var snap types.Snapshot
	if err := s.manager.Do(func() { snap = sess.Snapshot() }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.withMessages(map[string]interface{}{"snapshot": snap})
}

// Control Handlers

func (s *Server) handleDebugBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("action",
			"One of: toggle, set, clear, clear_all, function, list, save, load").Error()), nil
	}
	if action != "list" && !s.config.CanModifyBreakpoints() {
		return mcp.NewToolResultError(errors.PermissionDenied("modify breakpoints", string(s.config.Mode)).Error()), nil
	}

	sess, err := s.breakpointOwner(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var opErr error
	err = s.manager.Do(func() {
		opErr = s.breakpointAction(sess.Breakpoints(), action, request)
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opErr != nil {
		return s.errorResult(opErr), nil
	}

	var list []types.BreakpointInfo
	if err := s.manager.Do(func() { list = sess.Breakpoints().BreakpointsAsList() }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if list == nil {
		list = []types.BreakpointInfo{}
	}
	return s.withMessages(map[string]interface{}{
		"sessionId":   sess.ID(),
		"breakpoints": list,
	})
}

// breakpointOwner returns the session whose store the breakpoint tools
// edit. Breakpoints may be set before anything has started, so a session is
// created when there is none.
func (s *Server) breakpointOwner(request mcp.CallToolRequest) (*session.Session, error) {
	if _, ok := request.GetArguments()["sessionId"]; ok {
		return s.session(request)
	}
	if sess := s.manager.Active(); sess != nil {
		return sess, nil
	}
	return s.manager.NewSession("")
}

func (s *Server) breakpointAction(store *breakpoints.Store, action string, request mcp.CallToolRequest) error {
	path := request.GetString("path", "")
	line := request.GetInt("line", 0)
	opts := breakpointOptions(request)

	needLocation := func() error {
		if path == "" {
			return errors.MissingParameter("path", "The source file of the breakpoint")
		}
		if line <= 0 {
			return errors.InvalidParameter("line", line, "a line number starting at 1")
		}
		return nil
	}

	switch action {
	case "toggle":
		if err := needLocation(); err != nil {
			return err
		}
		store.ToggleBreakpoint(path, line, opts, false)
	case "set":
		if err := needLocation(); err != nil {
			return err
		}
		store.SetLineBreakpoint(path, line, opts, nil)
	case "clear":
		if err := needLocation(); err != nil {
			return err
		}
		store.ClearLineBreakpoint(path, line)
	case "clear_all":
		store.ClearBreakpoints()
	case "function":
		fn := request.GetString("function", "")
		if fn == "" {
			return errors.MissingParameter("function", "The name of the function to break in")
		}
		store.ToggleFunctionBreakpoint(fn, opts)
	case "list":
	case "save", "load":
		file := path
		if file == "" {
			file = s.config.BreakpointsFile
		}
		if file == "" {
			return errors.MissingParameter("path", "The file to save breakpoints to or load them from")
		}
		if action == "save" {
			return store.SaveFile(file)
		}
		return store.LoadFile(file)
	default:
		return errors.InvalidParameter("action", action, "one of toggle, set, clear, clear_all, function, list, save, load")
	}
	return nil
}

func breakpointOptions(request mcp.CallToolRequest) breakpoints.Options {
	opts := breakpoints.Options{}
	for _, key := range []string{"condition", "hitCondition", "logMessage"} {
		if v := request.GetString(key, ""); v != "" {
			opts[key] = v
		}
	}
	return opts
}

func (s *Server) handleDebugContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.control(ctx, request, func(sess *session.Session) error {
		if err := s.selectThread(sess, request); err != nil {
			return err
		}
		return sess.Continue()
	}, types.SessionStatePaused, types.SessionStateIdle)
}

func (s *Server) handleDebugPause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.control(ctx, request, func(sess *session.Session) error {
		if err := s.selectThread(sess, request); err != nil {
			return err
		}
		return sess.Pause()
	}, types.SessionStatePaused, types.SessionStateIdle)
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("type", "Step type: over, into or out").Error()), nil
	}
	var step func(*session.Session) error
	switch stepType {
	case "over":
		step = (*session.Session).StepOver
	case "into":
		step = (*session.Session).StepInto
	case "out":
		step = (*session.Session).StepOut
	default:
		return mcp.NewToolResultError(errors.InvalidParameter("type", stepType, "over, into or out").Error()), nil
	}
	return s.control(ctx, request, step, types.SessionStatePaused, types.SessionStateIdle)
}

func (s *Server) handleDebugRunToLine(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(errors.MissingParameter("path", "The source file to run to").Error()), nil
	}
	line, err := request.RequireInt("line")
	if err != nil || line <= 0 {
		return mcp.NewToolResultError(errors.InvalidParameter("line", line, "a line number starting at 1").Error()), nil
	}
	return s.control(ctx, request, func(sess *session.Session) error {
		return sess.RunTo(path, line)
	}, types.SessionStatePaused, types.SessionStateIdle)
}

func (s *Server) handleDebugSelect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.control(ctx, request, func(sess *session.Session) error {
		if err := s.selectThread(sess, request); err != nil {
			return err
		}
		if frameID, err := request.RequireInt("frameId"); err == nil {
			return sess.SetCurrentFrame(frameID)
		}
		return nil
	})
}

func (s *Server) selectThread(sess *session.Session, request mcp.CallToolRequest) error {
	threadID, err := request.RequireInt("threadId")
	if err != nil {
		return nil
	}
	return sess.SetCurrentThread(threadID)
}

// control runs op on the executor, then optionally waits for one of states
// and returns a snapshot.
func (s *Server) control(ctx context.Context, request mcp.CallToolRequest, op func(*session.Session) error, states ...types.SessionState) (*mcp.CallToolResult, error) {
	sess, err := s.session(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var opErr error
	if err := s.manager.Do(func() { opErr = op(sess) }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if opErr != nil {
		return s.errorResult(opErr), nil
	}
	if len(states) > 0 {
		s.waitFor(ctx, sess, request, states...)
	}

	var snap types.Snapshot
	if err := s.manager.Do(func() { snap = sess.Snapshot() }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.withMessages(map[string]interface{}{"snapshot": snap})
}

// Helper functions

// session resolves the sessionId argument, defaulting to the active session.
func (s *Server) session(request mcp.CallToolRequest) (*session.Session, error) {
	id, err := request.RequireInt("sessionId")
	if err != nil {
		if sess := s.manager.Active(); sess != nil {
			return sess, nil
		}
		return nil, errors.MissingParameter("sessionId",
			"Provide the sessionId returned from debug_start. Use debug_list_sessions to see sessions.")
	}
	return s.manager.GetSession(id)
}

// waitFor polls until the session reaches one of states, the request's
// "wait" seconds have passed, or ctx is done. The state is only ever read on
// the executor.
func (s *Server) waitFor(ctx context.Context, sess *session.Session, request mcp.CallToolRequest, states ...types.SessionState) {
	seconds := request.GetFloat("wait", 0)
	if seconds <= 0 {
		return
	}
	deadline := time.Now().Add(time.Duration(seconds * float64(time.Second)))

	// give the adapter a moment to leave the state the request started in
	time.Sleep(pollInterval)
	for time.Now().Before(deadline) {
		var state types.SessionState
		if err := s.manager.Do(func() { state = sess.State() }); err != nil {
			return
		}
		for _, want := range states {
			if state == want {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

func (s *Server) sessionResult(sess *session.Session, extra map[string]interface{}) (*mcp.CallToolResult, error) {
	var info types.SessionInfo
	if err := s.manager.Do(func() { info = sess.Info() }); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := map[string]interface{}{"session": info}
	for k, v := range extra {
		result[k] = v
	}
	return s.withMessages(result)
}

// withMessages attaches the messages the sessions showed since the last
// tool call.
func (s *Server) withMessages(result map[string]interface{}) (*mcp.CallToolResult, error) {
	if msgs := s.prompter.DrainMessages(); len(msgs) > 0 {
		result["messages"] = msgs
	}
	return jsonResult(result)
}

// errorResult reports err together with any messages shown while it
// happened.
func (s *Server) errorResult(err error) *mcp.CallToolResult {
	text := err.Error()
	for _, m := range s.prompter.DrainMessages() {
		if m.Text != "" && m.Text != text {
			text += "\n" + m.Text
		}
	}
	return mcp.NewToolResultError(text)
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
