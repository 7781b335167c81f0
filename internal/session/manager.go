package session

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/adapters"
	"github.com/ctagard/dapctl/internal/config"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/prompt"
)

// Dialer brings up the adapter described by spec and returns a connection
// whose events and reverse requests are routed through d.
type Dialer func(ctx context.Context, spec *adapters.Spec, d *internaldap.Dispatcher) (internaldap.Connection, error)

// Options configures a Manager.
type Options struct {
	Config *config.Config

	// Prompter answers prompts that are not tied to one Start (exception
	// filters, terminate confirmation) and shows messages.
	Prompter prompt.Prompter

	// Choices remembers prompt answers for the lifetime of the process.
	Choices *prompt.Choices

	// Executor runs every session callback. Defaults to a new Loop.
	Executor internaldap.Executor

	// Dialer defaults to launching the adapter and connecting over its
	// stdio or TCP socket.
	Dialer Dialer
}

// Manager registers every session of the process and owns the executor
// their state lives on.
type Manager struct {
	cfg      *config.Config
	exec     internaldap.Executor
	loop     *internaldap.Loop
	prompter prompt.Prompter
	choices  *prompt.Choices
	dial     Dialer
	builtin  map[string]launchconfig.Object
	updates  chan struct{}
	log      *logrus.Entry

	mu       sync.RWMutex
	sessions map[int]*Session
	nextID   int
	active   *Session
}

// NewManager returns a manager with no sessions.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	m := &Manager{
		cfg:      cfg,
		exec:     opts.Executor,
		prompter: opts.Prompter,
		choices:  opts.Choices,
		dial:     opts.Dialer,
		builtin:  adapters.Builtin(cfg.Adapters),
		updates:  make(chan struct{}, 1),
		log:      logflags.SessionLogger(),
		sessions: make(map[int]*Session),
		nextID:   1,
	}
	if m.exec == nil {
		m.loop = internaldap.NewLoop()
		m.exec = m.loop
	}
	if m.prompter == nil {
		m.prompter = prompt.NewScripted()
	}
	if m.choices == nil {
		m.choices = prompt.NewChoices(nil)
	}
	if m.dial == nil {
		m.dial = m.launchAdapter
	}
	return m
}

// adapterConn closes the adapter process along with the connection.
type adapterConn struct {
	*internaldap.Conn
	adapter *adapters.Adapter
}

func (c *adapterConn) Close() error {
	err := c.Conn.Close()
	if kerr := c.adapter.Kill(); err == nil {
		err = kerr
	}
	return err
}

func (m *Manager) launchAdapter(ctx context.Context, spec *adapters.Spec, d *internaldap.Dispatcher) (internaldap.Connection, error) {
	a, err := adapters.Launch(ctx, spec)
	if err != nil {
		return nil, err
	}
	conn := internaldap.NewConn(a.Transport, m.exec, d, m.cfg.RequestTimeout)
	return &adapterConn{Conn: conn, adapter: a}, nil
}

// Do runs fn on the executor and waits for it. It must not be called from
// the executor itself.
func (m *Manager) Do(fn func()) error {
	if m.loop == nil {
		fn()
		return nil
	}
	if !m.loop.Call(fn) {
		return errors.ConnectionClosed("session manager")
	}
	return nil
}

// Updates is signalled after any change to session state that affects
// display. Readers re-read the state they need.
func (m *Manager) Updates() <-chan struct{} {
	return m.updates
}

func (m *Manager) signal() {
	select {
	case m.updates <- struct{}{}:
	default:
	}
}

// Choices returns the remembered prompt answers.
func (m *Manager) Choices() *prompt.Choices {
	return m.choices
}

// Config returns the tool configuration.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Builtin returns the built-in adapter specs configurations may name.
func (m *Manager) Builtin() map[string]launchconfig.Object {
	return m.builtin
}

// NewSession creates a root session. The first session becomes active.
func (m *Manager) NewSession(name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countRootsLocked() >= m.cfg.MaxSessions {
		return nil, errors.SessionLimitReached(m.cfg.MaxSessions)
	}
	s := m.addLocked(name, nil)
	if m.active == nil {
		m.active = s
	}
	m.signal()
	return s, nil
}

func (m *Manager) newChild(parent *Session, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[parent.id]; !ok {
		return nil, errors.SessionNotFound(strconv.Itoa(parent.id))
	}
	s := m.addLocked(name, parent)
	m.signal()
	return s, nil
}

func (m *Manager) addLocked(name string, parent *Session) *Session {
	id := m.nextID
	m.nextID++
	s := newSession(m, id, name, parent)
	m.sessions[id] = s
	m.log.Debugf("created %s", s)
	return s
}

func (m *Manager) countRootsLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s.parent == nil {
			n++
		}
	}
	return n
}

// destroyChild removes a disconnected child and its descendants.
func (m *Manager) destroyChild(s *Session) {
	if s.parent == nil {
		return
	}
	p := s.parent
	for i, c := range p.children {
		if c == s {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	m.mu.Lock()
	m.removeLocked(s)
	m.mu.Unlock()
	m.signal()
}

func (m *Manager) removeLocked(s *Session) {
	for _, c := range s.children {
		m.removeLocked(c)
	}
	delete(m.sessions, s.id)
	if m.active == s {
		m.active = nil
	}
}

// DestroySession stops a session and its descendants and removes them.
// Runs on the executor.
func (m *Manager) DestroySession(id int) error {
	s, err := m.GetSession(id)
	if err != nil {
		return err
	}
	s.stopThen(func() {
		if s.parent != nil {
			m.destroyChild(s)
			return
		}
		m.mu.Lock()
		m.removeLocked(s)
		m.pickActiveLocked()
		m.mu.Unlock()
		m.signal()
	})
	return nil
}

// DestroyRootSession removes a root session that is not connected. The
// active session moves to the first remaining root.
func (m *Manager) DestroyRootSession(id int) error {
	s, err := m.GetSession(id)
	if err != nil {
		return err
	}
	if s.parent != nil {
		return errors.NotRootSession(id)
	}
	if s.anyConnected() {
		return errors.SessionConnected(id)
	}
	s.closeTerminals()
	m.mu.Lock()
	m.removeLocked(s)
	m.pickActiveLocked()
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *Manager) pickActiveLocked() {
	if m.active != nil {
		return
	}
	for _, s := range m.sortedLocked() {
		if s.parent == nil {
			m.active = s
			return
		}
	}
}

// GetSession returns the session with the given id.
func (m *Manager) GetSession(id int) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(strconv.Itoa(id))
	}
	return s, nil
}

// FindSessionByName returns the first session, by id, called name.
func (m *Manager) FindSessionByName(name string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sortedLocked() {
		if s.name == name {
			return s, true
		}
	}
	return nil, false
}

// SessionNames returns the names of the named root sessions.
func (m *Manager) SessionNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, s := range m.sortedLocked() {
		if s.parent == nil && s.name != "" {
			names = append(names, s.name)
		}
	}
	return names
}

// Sessions returns every session ordered by id.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

func (m *Manager) sortedLocked() []*Session {
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Active returns the active session, or nil.
func (m *Manager) Active() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// SetActive makes session id active.
func (m *Manager) SetActive(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return errors.SessionNotFound(strconv.Itoa(id))
	}
	m.active = s
	m.signal()
	return nil
}

// Close stops every root session, waiting at most until ctx is done, then
// stops the executor.
func (m *Manager) Close(ctx context.Context) {
	done := make(chan struct{})
	post := func() {
		var roots []*Session
		for _, s := range m.Sessions() {
			if s.parent == nil {
				roots = append(roots, s)
			}
		}
		remaining := len(roots)
		if remaining == 0 {
			close(done)
			return
		}
		for _, s := range roots {
			s := s
			s.stopThen(func() {
				s.closeTerminals()
				remaining--
				if remaining == 0 {
					close(done)
				}
			})
		}
	}
	m.exec.Post(post)

	select {
	case <-done:
	case <-ctx.Done():
		m.log.Warn("timed out stopping sessions")
	}
	if m.loop != nil {
		m.loop.Stop()
	}
}
