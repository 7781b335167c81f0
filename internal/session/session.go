// Package session drives debugging sessions: the lifecycle of one adapter
// connection (start, handshake, stop, reset), the parent/child tree used for
// debuggees that spawn further debug targets, execution control, and the
// Manager that registers every session of the process.
//
// Session state is owned by the Manager's executor. Session methods must be
// called on it, which is what Manager.Do is for; callbacks from connections
// arrive there too.
package session

import (
	"fmt"

	"github.com/emirpasic/gods/queues/circularbuffer"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/adapters"
	"github.com/ctagard/dapctl/internal/barrier"
	"github.com/ctagard/dapctl/internal/breakpoints"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/threads"
	"github.com/ctagard/dapctl/pkg/types"
)

const outputLines = 1000

// Session is one debugging conversation with one adapter connection.
type Session struct {
	id       int
	name     string
	parent   *Session
	children []*Session
	manager  *Manager

	state              types.SessionState
	initializeComplete bool
	launchComplete     bool
	configuring        bool
	lastErr            string

	conn    internaldap.Connection
	caps    internaldap.Capabilities
	threads *threads.Model

	// ready gates the first thread load on both halves of the handshake.
	ready      *barrier.Barrier
	configured func()

	// store is owned by the root session; descendants hold the root's.
	store *breakpoints.Store

	// resolved is kept so Restart can reuse it without prompting again.
	resolved *launchconfig.Resolved

	onClosed  []func()
	terminals []*adapters.Terminal
	output    *circularbuffer.Queue

	log *logrus.Entry
}

func newSession(m *Manager, id int, name string, parent *Session) *Session {
	s := &Session{
		id:      id,
		name:    name,
		parent:  parent,
		manager: m,
		state:   types.SessionStateIdle,
		output:  circularbuffer.New(outputLines),
		log:     logflags.SessionLogger().WithField("session", id),
	}
	if parent == nil {
		s.store = breakpoints.New(m.prompter, m.choices)
		s.store.SetNotify(m.signal)
	} else {
		s.store = parent.root().store
		parent.children = append(parent.children, s)
	}
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() int {
	return s.id
}

// Name returns the session's name, which may be empty.
func (s *Session) Name() string {
	return s.name
}

// SetName renames the session.
func (s *Session) SetName(name string) {
	s.name = name
	s.notify()
}

// Parent returns the parent session, or nil for a root session.
func (s *Session) Parent() *Session {
	return s.parent
}

// Children returns the child sessions in creation order.
func (s *Session) Children() []*Session {
	return append([]*Session(nil), s.children...)
}

func (s *Session) root() *Session {
	r := s
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Breakpoints returns the breakpoint store shared by the session tree.
func (s *Session) Breakpoints() *breakpoints.Store {
	return s.store
}

// Connected reports whether the session has a live adapter connection.
func (s *Session) Connected() bool {
	return s.conn != nil
}

// Ready reports whether the handshake has completed.
func (s *Session) Ready() bool {
	return s.conn != nil && s.initializeComplete && s.launchComplete
}

// Capabilities returns a copy of the adapter's capabilities.
func (s *Session) Capabilities() internaldap.Capabilities {
	if s.caps == nil {
		return internaldap.Capabilities{}
	}
	return s.caps.Clone()
}

// State returns the lifecycle state. A ready session with a paused thread
// is reported as paused.
func (s *Session) State() types.SessionState {
	if s.state == types.SessionStateReady && s.threads != nil {
		for _, t := range s.threads.Threads() {
			if t.State == types.ThreadStatePaused {
				return types.SessionStatePaused
			}
		}
	}
	return s.state
}

func (s *Session) setState(state types.SessionState) {
	if s.state == state {
		return
	}
	s.log.Debugf("state %s -> %s", s.state, state)
	s.state = state
	s.notify()
}

func (s *Session) notify() {
	s.manager.signal()
}

// message shows text to the user.
func (s *Session) message(text string, isError bool) {
	if isError {
		s.log.Warn(text)
	}
	s.manager.prompter.Message(text, isError)
}

func (s *Session) fail(err error) {
	s.lastErr = err.Error()
	s.message(err.Error(), true)
}

func (s *Session) appendOutput(category, text string) {
	if category == "" {
		category = "console"
	}
	s.output.Enqueue(types.OutputLine{Category: category, Output: text})
	s.notify()
}

// Output returns the buffered adapter and debuggee output, oldest first.
func (s *Session) Output() []types.OutputLine {
	values := s.output.Values()
	out := make([]types.OutputLine, 0, len(values))
	for _, v := range values {
		out = append(out, v.(types.OutputLine))
	}
	return out
}

// Info summarises the session for list views.
func (s *Session) Info() types.SessionInfo {
	info := types.SessionInfo{
		ID:        s.id,
		Name:      s.name,
		State:     s.State(),
		Connected: s.conn != nil,
		LastError: s.lastErr,
	}
	if s.parent != nil {
		id := s.parent.id
		info.Parent = &id
	}
	for _, c := range s.children {
		info.Children = append(info.Children, c.id)
	}
	if s.resolved != nil {
		info.Configuration = s.resolved.Name
		info.Adapter = s.resolved.AdapterName
	}
	return info
}

// Snapshot returns the inspectable state of the session.
func (s *Session) Snapshot() types.Snapshot {
	snap := types.Snapshot{
		Session: s.Info(),
		Threads: []types.ThreadInfo{},
		Output:  s.Output(),
	}
	if s.threads != nil {
		snap.Threads = s.threads.Threads()
		if id, ok := s.threads.CurrentThread(); ok {
			snap.CurrentThread = &id
		}
		snap.CurrentFrame = s.threads.CurrentFrame()
	}
	return snap
}

// Threads returns the thread model of the current connection, or nil.
func (s *Session) Threads() *threads.Model {
	return s.threads
}

func (s *Session) String() string {
	if s.name != "" {
		return fmt.Sprintf("session %d (%s)", s.id, s.name)
	}
	return fmt.Sprintf("session %d", s.id)
}
