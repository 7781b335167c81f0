// Package breakpoints owns the user's breakpoints and reconciles them with
// the breakpoints each connected debug adapter reports.
//
// A Store holds line, function, instruction and exception breakpoints. Local
// state is authoritative: every reconciliation round sends the full enabled
// set to each registered connection and records what the adapter made of
// it, per connection, without changing what the user asked for (except to
// follow a temporary breakpoint the adapter relocated).
package breakpoints

import (
	"github.com/ctagard/dapctl/pkg/types"
)

// Options carries the optional protocol fields of a breakpoint (condition,
// hitCondition, logMessage) plus the local-only "temporary" flag.
type Options map[string]interface{}

// Temporary reports whether the breakpoint is removed once hit.
func (o Options) Temporary() bool {
	v, ok := o["temporary"].(bool)
	return ok && v
}

// Condition returns the breakpoint condition, if any.
func (o Options) Condition() string {
	s, _ := o["condition"].(string)
	return s
}

func (o Options) clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// payload returns the options as protocol fields, without local-only flags.
func (o Options) payload() map[string]interface{} {
	out := make(map[string]interface{}, len(o)+1)
	for k, v := range o {
		if k == "temporary" {
			continue
		}
		out[k] = v
	}
	return out
}

// ServerState is what one adapter reported about a breakpoint.
type ServerState struct {
	Verified bool
	Line     int // 0 when the adapter reported no line
	ID       int // 0 when the adapter assigned no id
}

// LineBreakpoint is a breakpoint at a line of a file, or, when Instruction is
// set, at an instruction address resolved by one connection.
type LineBreakpoint struct {
	File    string
	Line    int
	State   types.BreakpointState
	Options Options

	// Instruction is set for instruction breakpoints.
	Instruction *Instruction

	// Server holds each connection's view, keyed by connection id.
	Server map[string]*ServerState

	// fromAdapter marks breakpoints created by an adapter "new" event.
	fromAdapter bool
}

// Instruction identifies the address of an instruction breakpoint and the
// connection that resolved it.
type Instruction struct {
	Address string
	Owner   string
}

// Enabled reports whether the breakpoint is sent to adapters.
func (bp *LineBreakpoint) Enabled() bool {
	return bp.State == types.BreakpointEnabled
}

// Verified reports whether any connection verified the breakpoint.
func (bp *LineBreakpoint) Verified() bool {
	return anyVerified(bp.Server)
}

// ReportedLine returns the first line an adapter reported, or 0.
func (bp *LineBreakpoint) ReportedLine() int {
	for _, s := range bp.Server {
		if s.Line > 0 {
			return s.Line
		}
	}
	return 0
}

// FunctionBreakpoint is a breakpoint on entry to a named function.
type FunctionBreakpoint struct {
	Function string
	State    types.BreakpointState
	Options  Options
	Server   map[string]*ServerState
}

// Enabled reports whether the breakpoint is sent to adapters.
func (bp *FunctionBreakpoint) Enabled() bool {
	return bp.State == types.BreakpointEnabled
}

func anyVerified(server map[string]*ServerState) bool {
	for _, s := range server {
		if s.Verified {
			return true
		}
	}
	return false
}
