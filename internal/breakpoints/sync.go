package breakpoints

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/go-dap"

	"github.com/ctagard/dapctl/internal/barrier"
	internaldap "github.com/ctagard/dapctl/internal/dap"
)

// SendBreakpoints starts a reconciliation round that pushes every
// breakpoint category to every registered connection. then runs once all
// requests of the round have completed. Only one round is in flight at a
// time: calls made meanwhile are folded into a single follow-up round whose
// completion runs each of their continuations in order.
func (s *Store) SendBreakpoints(then func()) {
	if s.inFlight {
		s.queued = true
		if then != nil {
			s.queuedDones = append(s.queuedDones, then)
		}
		return
	}
	s.inFlight = true
	s.runRound(then)
}

// RoundInFlight reports whether a reconciliation round is outstanding.
func (s *Store) RoundInFlight() bool {
	return s.inFlight
}

func (s *Store) runRound(then func()) {
	if s.exceptions == nil && s.anyNeedsExceptions() {
		if err := s.negotiateExceptions(); err != nil {
			if isCancelled(err) {
				s.log.Info("exception breakpoint negotiation cancelled")
			} else {
				s.message(err.Error(), true)
			}
		}
	}

	b := barrier.New(func() { s.roundDone(then) })
	for _, cs := range s.conns {
		s.sendTo(cs, b)
	}
	b.Arm()
}

func (s *Store) roundDone(then func()) {
	s.inFlight = false
	s.notify()
	if then != nil {
		then()
	}
	if !s.queued || s.inFlight {
		return
	}
	dones := s.queuedDones
	s.queued = false
	s.queuedDones = nil
	s.SendBreakpoints(func() {
		for _, done := range dones {
			done()
		}
	})
}

func (s *Store) anyNeedsExceptions() bool {
	for _, cs := range s.conns {
		if cs.needsExceptions() {
			return true
		}
	}
	return false
}

func (s *Store) message(text string, isError bool) {
	if s.prompter == nil {
		s.log.Warn(text)
		return
	}
	s.prompter.Message(text, isError)
}

// request issues one request of a round. The barrier slot completes whether
// the request succeeds or fails, and callbacks for a connection that has
// since been unregistered are ignored.
func (s *Store) request(cs *connState, b *barrier.Barrier, command string, args interface{}, handle func(json.RawMessage)) {
	done := b.Add()
	cs.conn.DoRequest(internaldap.Request{Command: command, Arguments: args},
		func(body json.RawMessage) {
			defer done()
			if !s.registered(cs) {
				return
			}
			handle(body)
		},
		func(reason string, _ *internaldap.Message) {
			defer done()
			if !s.registered(cs) {
				return
			}
			s.message(fmt.Sprintf("Unable to set breakpoint: %s", reason), true)
		}, 0)
}

func (s *Store) sendTo(cs *connState, b *barrier.Barrier) {
	for _, file := range s.Files() {
		s.sendFile(cs, b, file)
	}
	if cs.caps.Supports("supportsFunctionBreakpoints") {
		s.sendFunctions(cs, b)
	}
	if cs.caps.Supports("supportsInstructionBreakpoints") {
		s.sendInstructions(cs, b)
	}
	switch {
	case s.exceptions != nil && cs.needsExceptions():
		s.sendExceptions(cs, b)
	case s.exceptions == nil && !cs.caps.Supports("supportsConfigurationDoneRequest"):
		// the request doubles as the end of configuration
		s.sendExceptions(cs, b)
	}
}

func (s *Store) sendFile(cs *connState, b *barrier.Barrier, file string) {
	id := cs.conn.SessionID()
	hasLines := false
	var sent []*LineBreakpoint
	payload := []map[string]interface{}{}
	for _, bp := range s.fileBreakpoints(file) {
		if bp.Instruction != nil {
			continue
		}
		hasLines = true
		if !bp.Enabled() {
			delete(bp.Server, id)
			continue
		}
		p := bp.Options.payload()
		p["line"] = bp.Line
		payload = append(payload, p)
		sent = append(sent, bp)
	}
	if !hasLines && !cs.sentFiles[file] {
		return
	}
	if len(payload) > 0 {
		cs.sentFiles[file] = true
	} else {
		delete(cs.sentFiles, file)
	}

	args := map[string]interface{}{
		"source": map[string]interface{}{
			"name": filepath.Base(file),
			"path": file,
		},
		"breakpoints":    payload,
		"sourceModified": false,
	}
	s.request(cs, b, "setBreakpoints", args, func(raw json.RawMessage) {
		var body dap.SetBreakpointsResponseBody
		if err := internaldap.DecodeBody(raw, &body); err != nil {
			s.log.Warnf("malformed setBreakpoints response for %s: %v", file, err)
			return
		}
		s.applyLineResults(id, file, sent, body.Breakpoints)
	})
}

// applyLineResults copies the adapter's view of each sent breakpoint back
// onto it. The response mirrors the request order.
func (s *Store) applyLineResults(connID, file string, sent []*LineBreakpoint, results []dap.Breakpoint) {
	for i, bp := range sent {
		if i >= len(results) {
			s.log.Warnf("setBreakpoints response for %s has %d entries, expected %d", file, len(results), len(sent))
			return
		}
		r := results[i]
		bp.Server[connID] = &ServerState{Verified: r.Verified, Line: r.Line, ID: r.Id}

		if !bp.Options.Temporary() || !s.containsLine(bp) {
			continue
		}
		if !r.Verified || r.Line <= 0 {
			s.message(fmt.Sprintf("Unable to set temporary breakpoint at line %d execution will continue...", bp.Line), true)
			continue
		}
		if r.Line == bp.Line {
			continue
		}
		if other, _ := s.findLine(file, r.Line); other != nil {
			s.log.Warnf("temporary breakpoint %s:%d moved to line %d, which already has a breakpoint", file, bp.Line, r.Line)
			continue
		}
		s.log.Debugf("temporary breakpoint %s:%d moved to line %d", file, bp.Line, r.Line)
		bp.Line = r.Line
	}
}

func (s *Store) sendFunctions(cs *connState, b *barrier.Barrier) {
	id := cs.conn.SessionID()
	var sent []*FunctionBreakpoint
	payload := []map[string]interface{}{}
	for _, bp := range s.functions {
		if !bp.Enabled() {
			delete(bp.Server, id)
			continue
		}
		p := bp.Options.payload()
		p["name"] = bp.Function
		payload = append(payload, p)
		sent = append(sent, bp)
	}

	args := map[string]interface{}{"breakpoints": payload}
	s.request(cs, b, "setFunctionBreakpoints", args, func(raw json.RawMessage) {
		var body dap.SetFunctionBreakpointsResponseBody
		if err := internaldap.DecodeBody(raw, &body); err != nil {
			s.log.Warnf("malformed setFunctionBreakpoints response: %v", err)
			return
		}
		for i, bp := range sent {
			if i >= len(body.Breakpoints) {
				s.log.Warnf("setFunctionBreakpoints response has %d entries, expected %d", len(body.Breakpoints), len(sent))
				return
			}
			r := body.Breakpoints[i]
			bp.Server[id] = &ServerState{Verified: r.Verified, Line: r.Line, ID: r.Id}
		}
	})
}

// sendInstructions sends the instruction breakpoints owned by cs. Addresses
// resolved by one connection mean nothing to another.
func (s *Store) sendInstructions(cs *connState, b *barrier.Barrier) {
	id := cs.conn.SessionID()
	var sent []*LineBreakpoint
	payload := []map[string]interface{}{}
	for _, file := range s.Files() {
		for _, bp := range s.fileBreakpoints(file) {
			if bp.Instruction == nil || bp.Instruction.Owner != id || !bp.Enabled() {
				continue
			}
			p := bp.Options.payload()
			p["instructionReference"] = bp.Instruction.Address
			payload = append(payload, p)
			sent = append(sent, bp)
		}
	}
	if len(sent) == 0 && !cs.sentInstructions {
		return
	}
	cs.sentInstructions = len(sent) > 0

	args := map[string]interface{}{"breakpoints": payload}
	s.request(cs, b, "setInstructionBreakpoints", args, func(raw json.RawMessage) {
		var body struct {
			Breakpoints []dap.Breakpoint `json:"breakpoints"`
		}
		if err := internaldap.DecodeBody(raw, &body); err != nil {
			s.log.Warnf("malformed setInstructionBreakpoints response: %v", err)
			return
		}
		for i, bp := range sent {
			if i >= len(body.Breakpoints) {
				return
			}
			r := body.Breakpoints[i]
			bp.Server[id] = &ServerState{Verified: r.Verified, Line: r.Line, ID: r.Id}
		}
	})
}

// sendExceptions sends the negotiated filters this connection advertises.
// The request is sent even when empty: adapters without configurationDone
// treat it as the end of configuration.
func (s *Store) sendExceptions(cs *connState, b *barrier.Barrier) {
	advertised := make(map[string]bool)
	for _, f := range cs.caps.ExceptionFilters() {
		advertised[f.Filter] = true
	}
	filters := []string{}
	if s.exceptions != nil {
		for _, f := range s.exceptions.Filters() {
			if advertised[f] {
				filters = append(filters, f)
			}
		}
	}

	args := map[string]interface{}{"filters": filters}
	if cs.caps.Supports("supportsExceptionOptions") {
		args["exceptionOptions"] = []interface{}{}
	}
	s.request(cs, b, "setExceptionBreakpoints", args, func(json.RawMessage) {})
}

// ConnectionClosed unregisters a connection. Its server state is dropped from
// every breakpoint and the instruction breakpoints it owned are discarded.
// Everything else, including the negotiated exception filters, survives.
func (s *Store) ConnectionClosed(connID string) {
	for i, cs := range s.conns {
		if cs.conn.SessionID() == connID {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			break
		}
	}

	for _, file := range s.Files() {
		bps := s.fileBreakpoints(file)
		keep := make([]*LineBreakpoint, 0, len(bps))
		for _, bp := range bps {
			if bp.Instruction != nil && bp.Instruction.Owner == connID {
				continue
			}
			delete(bp.Server, connID)
			keep = append(keep, bp)
		}
		s.setFileBreakpoints(file, keep)
	}
	for _, bp := range s.functions {
		delete(bp.Server, connID)
	}
	s.notify()
}
