package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the session tools, and the control tools in full mode.
func (s *Server) registerTools() {
	s.registerDebugStart()
	s.registerDebugStop()
	s.registerDebugReset()
	s.registerDebugListSessions()
	s.registerDebugListConfigs()
	s.registerDebugSnapshot()

	if s.config.CanUseControlTools() || s.config.CanModifyBreakpoints() {
		s.registerDebugBreakpoints()
	}
	if s.config.CanUseControlTools() {
		s.registerDebugContinue()
		s.registerDebugPause()
		s.registerDebugStep()
		s.registerDebugRunToLine()
		s.registerDebugSelect()
	}
}

func sessionArg() mcp.ToolOption {
	return mcp.WithNumber("sessionId",
		mcp.Description("The session ID (default: the active session)"),
	)
}

func waitArg() mcp.ToolOption {
	return mcp.WithNumber("wait",
		mcp.Description("Seconds to wait for the session to become ready or pause (default: 0, return at once)"),
	)
}

// Session tools

func (s *Server) registerDebugStart() {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Start a debug session from a .dapctl.json configuration. Starting a running session restarts it. Returns the session; use debug_snapshot to follow its state."),
		mcp.WithString("session",
			mcp.Description("Name of the session to start. An existing session with this name is reused; otherwise a new one is created."),
		),
		mcp.WithString("configuration",
			mcp.Description("Name of the configuration to start. Optional when the project has a single or default configuration."),
		),
		mcp.WithString("currentFile",
			mcp.Description("The file being debugged. Anchors the project file search and sets ${file}."),
		),
		mcp.WithString("configFile",
			mcp.Description("Path of the project configuration file, instead of searching upward from currentFile"),
		),
		mcp.WithString("variables",
			mcp.Description("JSON object of values for variables the configuration asks for. Example: {\"port\": \"5678\"}"),
		),
		waitArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Disconnect a session and every child session it spawned. The debuggee is left running unless terminateDebuggee is true."),
		sessionArg(),
		mcp.WithBoolean("terminateDebuggee",
			mcp.Description("Terminate a running debuggee (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

func (s *Server) registerDebugReset() {
	tool := mcp.NewTool("debug_reset",
		mcp.WithDescription("Stop a session and forget its configuration and output, so the next debug_start resolves everything again"),
		sessionArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugReset)
}

func (s *Server) registerDebugListSessions() {
	tool := mcp.NewTool("debug_list_sessions",
		mcp.WithDescription("List every session, including child sessions started by the adapter"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListSessions)
}

func (s *Server) registerDebugListConfigs() {
	tool := mcp.NewTool("debug_list_configs",
		mcp.WithDescription("List the debug configurations available for a file or project configuration"),
		mcp.WithString("currentFile",
			mcp.Description("A file in the project; the configuration file is searched upward from it"),
		),
		mcp.WithString("configFile",
			mcp.Description("Path of the project configuration file"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugListConfigs)
}

func (s *Server) registerDebugSnapshot() {
	tool := mcp.NewTool("debug_snapshot",
		mcp.WithDescription("Get the state of a session in one call: threads with their stack frames, the current thread and frame, recent output and messages from the adapter."),
		sessionArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSnapshot)
}

// Control tools

func (s *Server) registerDebugBreakpoints() {
	tool := mcp.NewTool("debug_breakpoints",
		mcp.WithDescription("Manage breakpoints. They belong to the session tree and survive restarts. Actions: toggle (add, then disable, then remove), set, clear, clear_all, function, list, save, load."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("One of: toggle, set, clear, clear_all, function, list, save, load"),
		),
		sessionArg(),
		mcp.WithString("path",
			mcp.Description("Source file for toggle, set and clear; file name for save and load"),
		),
		mcp.WithNumber("line",
			mcp.Description("Line number for toggle, set and clear"),
		),
		mcp.WithString("function",
			mcp.Description("Function name for the function action"),
		),
		mcp.WithString("condition",
			mcp.Description("Break only when this expression is true"),
		),
		mcp.WithString("hitCondition",
			mcp.Description("Break only when the hit count satisfies this expression"),
		),
		mcp.WithString("logMessage",
			mcp.Description("Log this message instead of breaking"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugBreakpoints)
}

func (s *Server) registerDebugContinue() {
	tool := mcp.NewTool("debug_continue",
		mcp.WithDescription("Resume the current thread, or threadId. Returns immediately unless wait is set."),
		sessionArg(),
		mcp.WithNumber("threadId",
			mcp.Description("Thread to resume (default: the current thread)"),
		),
		waitArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugContinue)
}

func (s *Server) registerDebugPause() {
	tool := mcp.NewTool("debug_pause",
		mcp.WithDescription("Pause the current thread, or threadId"),
		sessionArg(),
		mcp.WithNumber("threadId",
			mcp.Description("Thread to pause (default: the current thread)"),
		),
		waitArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugPause)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Step the current thread. type='over' runs to the next line, 'into' enters the call, 'out' returns from the current function."),
		sessionArg(),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: over, into or out"),
		),
		waitArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugRunToLine() {
	tool := mcp.NewTool("debug_run_to_line",
		mcp.WithDescription("Run the current thread to a line. A temporary breakpoint is set there and removed when it is hit."),
		sessionArg(),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("The line number to run to"),
		),
		waitArg(),
	)
	s.mcpServer.AddTool(tool, s.handleDebugRunToLine)
}

func (s *Server) registerDebugSelect() {
	tool := mcp.NewTool("debug_select",
		mcp.WithDescription("Make a thread current, and optionally one of its frames"),
		sessionArg(),
		mcp.WithNumber("threadId",
			mcp.Description("Thread to make current"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Frame of the current thread to make current"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSelect)
}
