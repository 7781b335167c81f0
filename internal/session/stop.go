package session

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/ctagard/dapctl/internal/barrier"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/pkg/types"
)

const disconnectTimeout = 5 * time.Second

// Stop disconnects the session's children, then the session itself.
func (s *Session) Stop() error {
	if !s.anyConnected() {
		return errors.NotConnected(s.id)
	}
	s.stopThen(nil)
	return nil
}

// StopThen is Stop with a continuation that runs once everything has
// disconnected.
func (s *Session) StopThen(then func()) {
	s.stopThen(then)
}

// Reset stops the session and forgets its configuration, so the next Start
// resolves everything again. Debuggees started in a terminal are killed.
func (s *Session) Reset() {
	s.stopThen(func() {
		s.closeTerminals()
		s.resolved = nil
		s.lastErr = ""
		s.output.Clear()
		s.threads = nil
		s.setState(types.SessionStateIdle)
		s.notify()
	})
}

func (s *Session) closeTerminals() {
	for _, t := range s.terminals {
		if err := t.Close(); err != nil {
			s.log.Debugf("closing terminal: %v", err)
		}
	}
	s.terminals = nil
}

func (s *Session) anyConnected() bool {
	if s.conn != nil {
		return true
	}
	for _, c := range s.children {
		if c.anyConnected() {
			return true
		}
	}
	return false
}

// stopThen stops every child, depth first, then disconnects s; then runs
// once all of them have gone.
func (s *Session) stopThen(then func()) {
	b := barrier.New(func() { s.disconnect(then) })
	for _, c := range s.Children() {
		c.stopThen(b.Add())
	}
	b.Arm()
}

// disconnect asks the adapter to disconnect and tears the connection down
// when it answers or the request fails. then runs after the teardown, or
// immediately when there is no connection.
func (s *Session) disconnect(then func()) {
	conn := s.conn
	if conn == nil {
		if then != nil {
			then()
		}
		return
	}
	if then != nil {
		s.onClosed = append(s.onClosed, then)
	}
	if s.state == types.SessionStateStopping {
		return
	}
	s.setState(types.SessionStateStopping)

	args := map[string]interface{}{}
	if s.caps.Supports("supportTerminateDebuggee") {
		args["terminateDebuggee"] = s.confirmTerminate()
	}

	closed := func() { s.connectionClosed(conn) }
	conn.DoRequest(internaldap.Request{
		Command:   "disconnect",
		Arguments: args,
	}, func(json.RawMessage) {
		closed()
	}, func(reason string, _ *internaldap.Message) {
		s.log.Debugf("disconnect failed: %s", reason)
		closed()
	}, disconnectTimeout)
}

// confirmTerminate asks whether a running debuggee should be terminated.
// Attached debuggees are left alone unless the user says otherwise.
func (s *Session) confirmTerminate() bool {
	if s.threads == nil || !s.threads.AnyThreadsRunning() {
		return false
	}
	terminate, err := s.manager.prompter.Confirm("Terminate the debuggee?")
	if err != nil {
		if !stderrors.Is(err, prompt.ErrCancelled) {
			s.log.Warnf("terminate prompt failed: %v", err)
		}
		return false
	}
	return terminate
}

// connectionClosed forgets everything learned from conn. It runs when a
// disconnect completes and again when the transport reports the close;
// only the first call for the current connection does anything.
func (s *Session) connectionClosed(conn internaldap.Connection) {
	if s.conn != conn {
		return
	}
	s.log.Info("connection closed")
	s.conn = nil
	if err := conn.Close(); err != nil {
		s.log.Debugf("close: %v", err)
	}

	s.store.ConnectionClosed(conn.SessionID())
	if s.parent == nil {
		s.store.ClearTemporaryBreakpoints()
	}
	if s.threads != nil {
		s.threads.Reset()
	}
	s.caps = nil
	s.ready = nil
	s.configured = nil
	s.initializeComplete = false
	s.launchComplete = false
	s.configuring = false
	s.setState(types.SessionStateIdle)

	callbacks := s.onClosed
	s.onClosed = nil
	for _, fn := range callbacks {
		fn()
	}

	if s.parent != nil && s.conn == nil {
		s.manager.destroyChild(s)
	}
	s.notify()
}
