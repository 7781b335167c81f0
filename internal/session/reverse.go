package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-dap"

	"github.com/ctagard/dapctl/internal/adapters"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

// onRunInTerminal starts the requested command on a pseudo-terminal whose
// output lands in the session's output buffer.
func (s *Session) onRunInTerminal(conn internaldap.Connection, msg *internaldap.Message) {
	var args dap.RunInTerminalRequestArguments
	if err := internaldap.DecodeBody(msg.Arguments, &args); err != nil {
		conn.DoResponse(msg, fmt.Errorf("malformed runInTerminal arguments: %w", err), nil)
		return
	}
	cwd := ""
	if s.resolved != nil {
		cwd = s.resolved.WorkspaceRoot
	}
	if args.Cwd == "" {
		s.log.Debugf("defaulting working directory to %s", cwd)
	}

	term, err := adapters.RunInTerminal(args, cwd, &terminalOutput{s: s})
	if err != nil {
		s.message(fmt.Sprintf("Unable to start terminal: %v", err), true)
		conn.DoResponse(msg, err, nil)
		return
	}
	s.terminals = append(s.terminals, term)
	conn.DoResponse(msg, nil, dap.RunInTerminalResponseBody{ProcessId: term.Pid()})
}

// terminalOutput forwards terminal output to the session's executor.
type terminalOutput struct {
	s *Session
}

func (w *terminalOutput) Write(p []byte) (int, error) {
	text := string(p)
	w.s.manager.exec.Post(func() { w.s.appendOutput("terminal", text) })
	return len(p), nil
}

// startDebuggingArguments is the body of a startDebugging reverse request.
type startDebuggingArguments struct {
	Configuration map[string]interface{} `json:"configuration"`
	Request       string                 `json:"request"`
}

// onStartDebugging creates a child session for a target the debuggee
// spawned. The request is acknowledged at once; the child runs the full
// handshake against the same adapter with the configuration it was given.
func (s *Session) onStartDebugging(conn internaldap.Connection, msg *internaldap.Message) {
	var args startDebuggingArguments
	if err := internaldap.DecodeBody(msg.Arguments, &args); err != nil {
		conn.DoResponse(msg, fmt.Errorf("malformed startDebugging arguments: %w", err), nil)
		return
	}
	if s.resolved == nil {
		conn.DoResponse(msg, fmt.Errorf("startDebugging: session has no configuration"), nil)
		return
	}
	if args.Request != "launch" && args.Request != "attach" {
		conn.DoResponse(msg, fmt.Errorf("startDebugging: unsupported request %q", args.Request), nil)
		return
	}

	name, _ := args.Configuration["name"].(string)
	child, err := s.manager.newChild(s, name)
	if err != nil {
		conn.DoResponse(msg, err, nil)
		return
	}
	conn.DoResponse(msg, nil, nil)

	resolved := s.childConfiguration(args)
	s.log.Infof("starting child %s for %q", child, resolved.Name)
	if err := child.startWithConfiguration(context.Background(), resolved, s.manager.prompter); err != nil {
		child.fail(err)
		s.manager.destroyChild(child)
	}
}

// childConfiguration builds an already resolved configuration for a child:
// the parent's adapter, minus its command when the adapter is a server the
// child can connect to, and the launch arguments the adapter asked for.
func (s *Session) childConfiguration(args startDebuggingArguments) *launchconfig.Resolved {
	parent := s.resolved
	adapter := launchconfig.DeepCopy(parent.Adapter)
	if _, ok := adapter["port"]; ok {
		delete(adapter, "command")
		delete(adapter, "cwd")
		delete(adapter, "env")
	}

	launch := launchconfig.DeepCopy(args.Configuration)
	if launch == nil {
		launch = launchconfig.Object{}
	}
	launch["request"] = args.Request

	name, _ := launch["name"].(string)
	if strings.TrimSpace(name) == "" {
		name = parent.Name
		launch["name"] = name
	}
	return &launchconfig.Resolved{
		Name:          name,
		AdapterName:   parent.AdapterName,
		Adapter:       adapter,
		Configuration: launchconfig.Object{"configuration": launchconfig.DeepCopy(launch)},
		LaunchConfig:  launch,
		WorkspaceRoot: parent.WorkspaceRoot,
		Variables:     parent.Variables,
	}
}
