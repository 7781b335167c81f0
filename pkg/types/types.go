// Package types defines the JSON-facing data types dapctl exposes to its
// presentation layers (the MCP server and the terminal REPL).
//
// This package provides type definitions for:
//   - SessionState: lifecycle of a debugging session
//   - Info types: SessionInfo, ThreadInfo, StackFrame, BreakpointInfo, Sign
//   - Snapshot: the current state of one session, for inspection
package types

// SessionState represents the lifecycle state of a debug session
type SessionState string

const (
	SessionStateIdle            SessionState = "idle"
	SessionStatePreparing       SessionState = "preparing"
	SessionStateAdapterStarting SessionState = "adapter_starting"
	SessionStateInitializing    SessionState = "initializing"
	SessionStateConfiguring     SessionState = "configuring"
	SessionStateReady           SessionState = "ready"
	SessionStatePaused          SessionState = "paused"
	SessionStateStopping        SessionState = "stopping"
	SessionStateTerminated      SessionState = "terminated"
)

// ThreadState represents the execution state of a thread
type ThreadState string

const (
	ThreadStateRunning    ThreadState = "running"
	ThreadStatePaused     ThreadState = "paused"
	ThreadStateTerminated ThreadState = "terminated"
)

// BreakpointState is the user-controlled state of a breakpoint
type BreakpointState string

const (
	BreakpointEnabled  BreakpointState = "ENABLED"
	BreakpointDisabled BreakpointState = "DISABLED"
)

// BreakpointKind distinguishes the breakpoint categories
type BreakpointKind string

const (
	BreakpointKindLine        BreakpointKind = "line"
	BreakpointKindFunction    BreakpointKind = "function"
	BreakpointKindInstruction BreakpointKind = "instruction"
	BreakpointKindException   BreakpointKind = "exception"
)

// SessionInfo represents information about a debug session
type SessionInfo struct {
	ID            int          `json:"id"`
	Name          string       `json:"name,omitempty"`
	State         SessionState `json:"state"`
	Parent        *int         `json:"parent,omitempty"`
	Children      []int        `json:"children,omitempty"`
	Configuration string       `json:"configuration,omitempty"`
	Adapter       string       `json:"adapter,omitempty"`
	Connected     bool         `json:"connected"`
	Active        bool         `json:"active,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
}

// ThreadInfo represents information about a thread
type ThreadInfo struct {
	ID         int          `json:"id"`
	Name       string       `json:"name"`
	State      ThreadState  `json:"state"`
	StopReason string       `json:"stopReason,omitempty"`
	Current    bool         `json:"current,omitempty"`
	Frames     []StackFrame `json:"frames,omitempty"`
}

// StackFrame represents a stack frame
type StackFrame struct {
	ID        int         `json:"id"`
	Name      string      `json:"name"`
	Source    *SourceInfo `json:"source,omitempty"`
	Line      int         `json:"line"`
	Column    int         `json:"column,omitempty"`
	EndLine   int         `json:"endLine,omitempty"`
	EndColumn int         `json:"endColumn,omitempty"`
}

// SourceInfo represents source file information
type SourceInfo struct {
	Name            string `json:"name,omitempty"`
	Path            string `json:"path,omitempty"`
	SourceReference int    `json:"sourceReference,omitempty"`
}

// BreakpointInfo is one entry of the flat breakpoint list
type BreakpointInfo struct {
	Kind         BreakpointKind         `json:"kind"`
	File         string                 `json:"file,omitempty"`
	Line         int                    `json:"line,omitempty"`
	Function     string                 `json:"function,omitempty"`
	Address      string                 `json:"address,omitempty"`
	Filter       string                 `json:"filter,omitempty"`
	State        BreakpointState        `json:"state,omitempty"`
	Verified     bool                   `json:"verified"`
	ReportedLine int                    `json:"reportedLine,omitempty"`
	Options      map[string]interface{} `json:"options,omitempty"`
}

// SignKind is how a breakpoint is drawn in the gutter
type SignKind string

const (
	SignBreakpoint   SignKind = "breakpoint"
	SignConditional  SignKind = "conditional"
	SignDisabled     SignKind = "disabled"
	SignUnverified   SignKind = "unverified"
	SignInstruction  SignKind = "instruction"
	SignProgramCount SignKind = "pc"
)

// Sign marks one line of a file
type Sign struct {
	Line int      `json:"line"`
	Kind SignKind `json:"kind"`
}

// OutputLine is a chunk of debuggee or adapter output
type OutputLine struct {
	Category string `json:"category"`
	Output   string `json:"output"`
}

// ConfigurationInfo describes a launch configuration available to start
type ConfigurationInfo struct {
	Name       string `json:"name"`
	Adapter    string `json:"adapter,omitempty"`
	Default    bool   `json:"default,omitempty"`
	Autoselect bool   `json:"autoselect"`
}

// Snapshot represents the inspectable state of a session
type Snapshot struct {
	Session       SessionInfo  `json:"session"`
	Threads       []ThreadInfo `json:"threads"`
	CurrentThread *int         `json:"currentThread,omitempty"`
	CurrentFrame  *StackFrame  `json:"currentFrame,omitempty"`
	Output        []OutputLine `json:"output,omitempty"`
}
