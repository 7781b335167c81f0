package session

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"

	internaldap "github.com/ctagard/dapctl/internal/dap"
)

// dispatcher builds the dispatch table for one connection. Every handler
// first checks that cur is still the session's connection.
func (s *Session) dispatcher(cur *connRef) *internaldap.Dispatcher {
	d := internaldap.NewDispatcher()

	live := func(name string, h func(conn internaldap.Connection, body json.RawMessage)) {
		d.OnEvent(name, func(body json.RawMessage) {
			conn := cur.conn
			if conn == nil || conn != s.conn {
				s.log.Debugf("dropping %s event from a stale connection", name)
				return
			}
			h(conn, body)
		})
	}
	ignore := func(name string) {
		d.OnEvent(name, func(json.RawMessage) {})
	}

	live("initialized", func(conn internaldap.Connection, _ json.RawMessage) { s.onInitialized(conn) })
	live("capabilities", s.onCapabilities)
	live("output", s.onOutput)
	live("process", s.onProcess)
	live("exited", s.onExited)
	live("terminated", s.onTerminated)
	live("continued", s.onContinued)
	live("stopped", s.onStopped)
	live("thread", s.onThread)
	live("breakpoint", s.onBreakpoint)
	ignore("module")
	ignore("loadedSource")

	d.OnRequest("runInTerminal", func(msg *internaldap.Message) bool {
		if cur.conn == nil || cur.conn != s.conn {
			return false
		}
		s.onRunInTerminal(cur.conn, msg)
		return true
	})
	d.OnRequest("startDebugging", func(msg *internaldap.Message) bool {
		if cur.conn == nil || cur.conn != s.conn {
			return false
		}
		s.onStartDebugging(cur.conn, msg)
		return true
	})

	d.OnClose(func() {
		if cur.conn != nil {
			s.connectionClosed(cur.conn)
		}
	})
	return d
}

func (s *Session) onCapabilities(conn internaldap.Connection, body json.RawMessage) {
	var ev struct {
		Capabilities internaldap.Capabilities `json:"capabilities"`
	}
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed capabilities event: %v", err)
		return
	}
	s.caps.Merge(ev.Capabilities)
	s.store.UpdateCapabilities(conn.SessionID(), ev.Capabilities)
}

func (s *Session) onOutput(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.OutputEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed output event: %v", err)
		return
	}
	if ev.Category == "telemetry" {
		return
	}
	s.appendOutput(ev.Category, ev.Output)
}

func (s *Session) onProcess(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.ProcessEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed process event: %v", err)
		return
	}
	s.message(fmt.Sprintf("The debugee was started: %s", ev.Name), false)
}

func (s *Session) onExited(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.ExitedEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed exited event: %v", err)
	}
	s.message(fmt.Sprintf("The debugee exited with status code: %d", ev.ExitCode), false)
	s.threads.OnExited()
}

// onTerminated only clears the frame; the teardown happens when the
// connection closes.
func (s *Session) onTerminated(_ internaldap.Connection, _ json.RawMessage) {
	s.message("Debugging was terminated by the server.", false)
	s.threads.ClearFrame()
}

func (s *Session) onContinued(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.ContinuedEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed continued event: %v", err)
		return
	}
	s.threads.OnContinued(ev.ThreadId, ev.AllThreadsContinued)
}

func (s *Session) onStopped(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.StoppedEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed stopped event: %v", err)
		return
	}
	text := stoppedMessage(ev)
	s.message(text, false)
	s.appendOutput("server", text+"\n")
	s.threads.OnStopped(ev)
}

func stoppedMessage(ev dap.StoppedEventBody) string {
	reason := ev.Reason
	if reason == "" {
		reason = "<protocol error>"
	}
	explanation := reason
	if ev.Description != "" {
		explanation = ev.Description + "(" + reason + ")"
	}
	if ev.Text != "" {
		explanation += ": " + ev.Text
	}
	thread := "<unknown>"
	if ev.ThreadId != 0 {
		thread = fmt.Sprint(ev.ThreadId)
	}
	return fmt.Sprintf("Paused in thread %s due to %s", thread, explanation)
}

func (s *Session) onThread(_ internaldap.Connection, body json.RawMessage) {
	var ev dap.ThreadEventBody
	if err := internaldap.DecodeBody(body, &ev); err != nil {
		s.log.Warnf("malformed thread event: %v", err)
		return
	}
	s.threads.OnThreadEvent(ev)
}

func (s *Session) onBreakpoint(conn internaldap.Connection, body json.RawMessage) {
	s.store.OnBreakpointEvent(conn.SessionID(), body)
}
