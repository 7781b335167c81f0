package session

import (
	"encoding/json"
	"fmt"

	"github.com/ctagard/dapctl/internal/breakpoints"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/pkg/types"
)

// continueResponse is the body of a continue response. A missing
// allThreadsContinued means every thread continued.
type continueResponse struct {
	AllThreadsContinued *bool `json:"allThreadsContinued"`
}

func (r continueResponse) all() bool {
	return r.AllThreadsContinued == nil || *r.AllThreadsContinued
}

func (s *Session) currentThread() (int, error) {
	if s.conn == nil {
		return 0, errors.NotConnected(s.id)
	}
	id, ok := s.threads.CurrentThread()
	if !ok {
		s.message("No current thread", true)
		return 0, errors.NoThreads()
	}
	return id, nil
}

// request issues command on the current connection. A failure is shown to
// the user unless the connection has since gone away.
func (s *Session) request(command string, args interface{}, onSuccess func(json.RawMessage)) {
	conn := s.conn
	conn.DoRequest(internaldap.Request{Command: command, Arguments: args}, func(body json.RawMessage) {
		if s.conn != conn || onSuccess == nil {
			return
		}
		onSuccess(body)
	}, func(reason string, _ *internaldap.Message) {
		if s.conn != conn {
			s.log.Debugf("%s failed after disconnect: %s", command, reason)
			return
		}
		s.message(errors.RequestFailed(command, reason).Error(), true)
	}, 0)
}

// Continue resumes the current thread.
func (s *Session) Continue() error {
	id, err := s.currentThread()
	if err != nil {
		return err
	}
	s.continueThread(id)
	return nil
}

func (s *Session) continueThread(id int) {
	s.request("continue", map[string]interface{}{"threadId": id}, func(body json.RawMessage) {
		var resp continueResponse
		if err := internaldap.DecodeBody(body, &resp); err != nil {
			s.log.Warnf("malformed continue response: %v", err)
		}
		s.threads.OnContinued(id, resp.all())
	})
}

// Pause suspends the current thread.
func (s *Session) Pause() error {
	id, err := s.currentThread()
	if err != nil {
		return err
	}
	s.request("pause", map[string]interface{}{"threadId": id}, nil)
	return nil
}

// StepOver steps the current thread over the current line.
func (s *Session) StepOver() error {
	return s.step("next")
}

// StepInto steps the current thread into the call on the current line.
func (s *Session) StepInto() error {
	return s.step("stepIn")
}

// StepOut runs the current thread until the current function returns.
func (s *Session) StepOut() error {
	return s.step("stepOut")
}

func (s *Session) step(command string) error {
	id, err := s.currentThread()
	if err != nil {
		return err
	}
	s.request(command, map[string]interface{}{"threadId": id}, func(json.RawMessage) {
		s.threads.OnContinued(id, false)
	})
	return nil
}

// PauseContinueThread continues thread id if it is paused and pauses it if
// it is running.
func (s *Session) PauseContinueThread(id int) error {
	if s.conn == nil {
		return errors.NotConnected(s.id)
	}
	state, ok := s.threads.ThreadState(id)
	switch {
	case !ok:
		return errors.InvalidParameter("threadId", id, "a known thread id")
	case state == types.ThreadStatePaused:
		s.continueThread(id)
	case state == types.ThreadStateRunning:
		s.request("pause", map[string]interface{}{"threadId": id}, nil)
	default:
		s.message(fmt.Sprintf("Thread cannot be modified in state %s", state), true)
	}
	return nil
}

// SetCurrentThread makes id the current thread.
func (s *Session) SetCurrentThread(id int) error {
	if s.conn == nil {
		return errors.NotConnected(s.id)
	}
	if !s.threads.SetCurrentThread(id) {
		return errors.InvalidParameter("threadId", id, "a known thread id")
	}
	return nil
}

// SetCurrentFrame moves the cursor to frame frameID of the current thread.
func (s *Session) SetCurrentFrame(frameID int) error {
	id, err := s.currentThread()
	if err != nil {
		return err
	}
	for _, t := range s.threads.Threads() {
		if t.ID != id {
			continue
		}
		for _, f := range t.Frames {
			if f.ID == frameID {
				s.threads.SetCurrentFrame(f, "")
				return nil
			}
		}
	}
	return errors.InvalidParameter("frameId", frameID, "a frame of the current thread")
}

// RunTo runs the current thread to (file, line) with a temporary
// breakpoint. Execution continues once the breakpoint has reached every
// adapter.
func (s *Session) RunTo(file string, line int) error {
	if s.conn == nil {
		return errors.NotConnected(s.id)
	}
	s.store.ClearTemporaryBreakpoints()
	s.store.SetLineBreakpoint(file, line, breakpoints.Options{"temporary": true}, func() {
		if err := s.Continue(); err != nil {
			s.log.Debugf("run to %s:%d: %v", file, line, err)
		}
	})
	return nil
}

// ToggleInstructionBreakpoint adds or removes a breakpoint at an
// instruction address resolved by this session's adapter.
func (s *Session) ToggleInstructionBreakpoint(address, file string, line int, options breakpoints.Options) error {
	if s.conn == nil {
		return errors.NotConnected(s.id)
	}
	if !s.caps.Supports("supportsInstructionBreakpoints") {
		return errors.Wrap(errors.CodeRequestFailed, "adapter does not support instruction breakpoints", "", nil)
	}
	s.store.ToggleInstructionBreakpoint(s.conn.SessionID(), address, file, line, options)
	return nil
}
