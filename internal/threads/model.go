// Package threads tracks the threads and stack frames of one adapter
// connection and the user's current thread and frame.
//
// Every path that needs a fresh thread list (stop events, thread events,
// explicit refreshes) goes through LoadThreads, which keeps at most one
// "threads" request in flight and folds everything asked for meanwhile into
// a single follow-up request.
package threads

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-dap"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/pkg/types"
)

const sourceCacheSize = 64

// Thread is one thread reported by the adapter.
type Thread struct {
	ID    int
	Name  string
	State types.ThreadState

	// Frames is nil until the stack trace has been fetched.
	Frames []types.StackFrame

	// StopEvent is the stop that paused the thread, if any.
	StopEvent *dap.StoppedEventBody
}

// CanExpand reports whether the thread's stack can be fetched.
func (t *Thread) CanExpand() bool {
	return t.State == types.ThreadStatePaused
}

func (t *Thread) pause(ev *dap.StoppedEventBody) {
	t.State = types.ThreadStatePaused
	t.StopEvent = ev
	t.Frames = nil
}

func (t *Thread) resume() {
	t.State = types.ThreadStateRunning
	t.StopEvent = nil
	t.Frames = nil
}

func (t *Thread) exit() {
	t.State = types.ThreadStateTerminated
	t.StopEvent = nil
	t.Frames = nil
}

type requestState int

const (
	requestIdle requestState = iota
	requestRequesting
	requestPending
)

// threadRequest is the intent behind a LoadThreads call.
type threadRequest struct {
	infer  bool
	reason string
	event  *dap.StoppedEventBody
	// resumes is Model.resumes when the request was made.
	resumes int
}

// Model is the thread state of one connection. It is not safe for
// concurrent use: all calls happen on the session event loop.
type Model struct {
	conn    internaldap.Connection
	threads []*Thread

	current      int
	hasCurrent   bool
	currentFrame *types.StackFrame

	state   requestState
	pending threadRequest
	// resumes counts continue notifications; stale stop events are not
	// carried past one.
	resumes int

	sources *lru.Cache

	notify  func()
	onFrame func(frame types.StackFrame, reason string)
	message func(text string, isError bool)
	log     *logrus.Entry
}

// New returns an empty model issuing its requests on conn.
func New(conn internaldap.Connection) *Model {
	cache, err := lru.New(sourceCacheSize)
	if err != nil {
		panic(err)
	}
	return &Model{
		conn:    conn,
		sources: cache,
		notify:  func() {},
		onFrame: func(types.StackFrame, string) {},
		message: func(string, bool) {},
		log:     logflags.ThreadsLogger().WithField("conn", conn.SessionID()),
	}
}

// SetNotify installs the function called after display-relevant changes.
func (m *Model) SetNotify(fn func()) {
	m.notify = fn
}

// SetFrameHandler installs the function called whenever the current frame
// moves. reason is "stopped" when the move follows a stop event.
func (m *Model) SetFrameHandler(fn func(frame types.StackFrame, reason string)) {
	m.onFrame = fn
}

// SetMessageHandler installs the function used for user-visible messages.
func (m *Model) SetMessageHandler(fn func(text string, isError bool)) {
	m.message = fn
}

// LoadThreads requests the thread list. With infer set, the current frame
// is derived from the result. If a request is already in flight the call is
// recorded as the single pending follow-up; repeated calls merge into it.
func (m *Model) LoadThreads(infer bool, reason string, ev *dap.StoppedEventBody) {
	req := threadRequest{infer: infer, reason: reason, event: ev, resumes: m.resumes}
	if m.state != requestIdle {
		if m.state == requestPending {
			req = m.merge(req, m.pending)
		}
		m.state = requestPending
		m.pending = req
		return
	}

	m.state = requestRequesting
	m.conn.DoRequest(internaldap.Request{Command: "threads"},
		func(body json.RawMessage) { m.consumeThreads(req, body) },
		func(reason string, _ *internaldap.Message) {
			m.log.Warnf("threads request failed: %s", reason)
			m.takePending(req)
		}, 0)
}

// Requesting reports whether a threads request is in flight.
func (m *Model) Requesting() bool {
	return m.state != requestIdle
}

// merge folds the older request into r. The newer stop event wins; the
// older one is kept when r has none and no continue has been seen since.
func (m *Model) merge(r, older threadRequest) threadRequest {
	r.infer = r.infer || older.infer
	if r.event == nil && older.resumes == m.resumes {
		r.event = older.event
		r.reason = older.reason
	}
	return r
}

// takePending leaves the requesting state, re-issuing the pending request
// if there is one with the intent of the finished request done folded in.
// It reports whether a new request was issued.
func (m *Model) takePending(done threadRequest) bool {
	if m.state != requestPending {
		m.state = requestIdle
		return false
	}
	next := m.merge(m.pending, done)
	m.pending = threadRequest{}
	m.state = requestIdle
	m.LoadThreads(next.infer, next.reason, next.event)
	return true
}

func (m *Model) consumeThreads(req threadRequest, raw json.RawMessage) {
	// a newer answer is on its way, so don't move the cursor on this one
	requesting := m.takePending(req)

	var body dap.ThreadsResponseBody
	if err := internaldap.DecodeBody(raw, &body); err != nil {
		m.log.Warnf("malformed threads response: %v", err)
		return
	}
	if len(body.Threads) == 0 {
		// some adapters answer with no threads before the debuggee is up
		m.message("Protocol error: Server returned no threads", true)
		return
	}

	ev := req.event
	if req.resumes != m.resumes {
		// continued since the stop; the event no longer describes the threads
		ev = nil
	}
	existing := make(map[int]*Thread, len(m.threads))
	for _, t := range m.threads {
		existing[t.ID] = t
	}
	threads := make([]*Thread, 0, len(body.Threads))
	for _, dt := range body.Threads {
		t, ok := existing[dt.Id]
		if !ok {
			t = &Thread{ID: dt.Id, State: types.ThreadStateRunning}
		}
		t.Name = dt.Name
		if ev != nil && t.State != types.ThreadStateTerminated &&
			(ev.AllThreadsStopped || ev.ThreadId == t.ID) {
			t.pause(ev)
		}
		threads = append(threads, t)
	}
	m.threads = threads

	if req.infer && !requesting {
		m.inferFrame(req.reason)
	}
	m.notify()
}

func (m *Model) inferFrame(reason string) {
	if m.hasCurrent {
		if t := m.thread(m.current); t != nil && t.CanExpand() {
			m.LoadStackTrace(t.ID, reason)
		}
		return
	}
	if len(m.threads) == 0 {
		return
	}
	t := m.threads[0]
	for _, candidate := range m.threads {
		if candidate.CanExpand() {
			t = candidate
			break
		}
	}
	m.current, m.hasCurrent = t.ID, true
	if t.CanExpand() {
		m.LoadStackTrace(t.ID, reason)
	}
}

func (m *Model) thread(id int) *Thread {
	for _, t := range m.threads {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// LoadStackTrace fetches the frames of thread id. When id is the current
// thread the first frame with a resolvable location becomes current.
func (m *Model) LoadStackTrace(id int, reason string) {
	t := m.thread(id)
	if t == nil || t.State == types.ThreadStateTerminated {
		return
	}
	m.conn.DoRequest(internaldap.Request{
		Command:   "stackTrace",
		Arguments: map[string]interface{}{"threadId": id},
	}, func(raw json.RawMessage) {
		t := m.thread(id)
		if t == nil || !t.CanExpand() {
			// continued, exited or vanished while we waited
			return
		}
		var body struct {
			StackFrames []types.StackFrame `json:"stackFrames"`
		}
		if err := internaldap.DecodeBody(raw, &body); err != nil {
			m.log.Warnf("malformed stackTrace response: %v", err)
			return
		}
		t.Frames = body.StackFrames
		if t.Frames == nil {
			t.Frames = []types.StackFrame{}
		}
		if m.hasCurrent && m.current == id {
			m.jumpToFirstFrame(t, reason)
		}
		m.notify()
	}, func(reason string, _ *internaldap.Message) {
		m.log.Warnf("stackTrace for thread %d failed: %s", id, reason)
	}, 0)
}

func (m *Model) jumpToFirstFrame(t *Thread, reason string) {
	for _, f := range t.Frames {
		if f.Line <= 0 || f.Source == nil {
			continue
		}
		if f.Source.Path == "" && f.Source.SourceReference <= 0 {
			continue
		}
		m.SetCurrentFrame(f, reason)
		return
	}
}

// SetCurrentFrame moves the cursor to frame. Frames whose source exists
// only inside the adapter are resolved first.
func (m *Model) SetCurrentFrame(frame types.StackFrame, reason string) {
	if frame.Source != nil && frame.Source.Path == "" && frame.Source.SourceReference > 0 {
		m.ResolveSource(*frame.Source, func(string) { m.setFrame(frame, reason) })
		return
	}
	m.setFrame(frame, reason)
}

func (m *Model) setFrame(frame types.StackFrame, reason string) {
	f := frame
	m.currentFrame = &f
	m.onFrame(f, reason)
	m.notify()
}

// ResolveSource fetches the content of a source known only by reference.
// Results are cached.
func (m *Model) ResolveSource(src types.SourceInfo, then func(content string)) {
	ref := src.SourceReference
	if v, ok := m.sources.Get(ref); ok {
		then(v.(string))
		return
	}
	m.conn.DoRequest(internaldap.Request{
		Command: "source",
		Arguments: map[string]interface{}{
			"sourceReference": ref,
			"source":          src,
		},
	}, func(raw json.RawMessage) {
		var body dap.SourceResponseBody
		if err := internaldap.DecodeBody(raw, &body); err != nil {
			m.log.Warnf("malformed source response: %v", err)
			return
		}
		m.sources.Add(ref, body.Content)
		then(body.Content)
	}, func(reason string, _ *internaldap.Message) {
		m.message(fmt.Sprintf("Unable to load source: %s", reason), true)
	}, 0)
}

// CachedSource returns the content of a source reference already fetched.
func (m *Model) CachedSource(ref int) (string, bool) {
	v, ok := m.sources.Get(ref)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// OnStopped handles a stopped event: the stopped thread becomes current and
// the thread list is refreshed.
func (m *Model) OnStopped(ev dap.StoppedEventBody) {
	switch {
	case ev.ThreadId != 0:
		m.current, m.hasCurrent = ev.ThreadId, true
	case ev.AllThreadsStopped && !m.hasCurrent && len(m.threads) > 0:
		m.current, m.hasCurrent = m.threads[0].ID, true
	}
	m.LoadThreads(true, "stopped", &ev)
}

// OnContinued marks threads running and collapses their stacks.
func (m *Model) OnContinued(threadID int, allThreads bool) {
	m.resumes++
	for _, t := range m.threads {
		if (allThreads || t.ID == threadID) && t.State != types.ThreadStateTerminated {
			t.resume()
		}
	}
	if allThreads || (m.hasCurrent && m.current == threadID) {
		m.currentFrame = nil
	}
	m.notify()
}

// OnThreadEvent handles a thread started or exited event.
func (m *Model) OnThreadEvent(ev dap.ThreadEventBody) {
	infer := false
	switch ev.Reason {
	case "started":
		if !m.hasCurrent {
			m.current, m.hasCurrent = ev.ThreadId, true
			infer = true
		}
	case "exited":
		if t := m.thread(ev.ThreadId); t != nil {
			t.exit()
		}
	}
	m.LoadThreads(infer, "", nil)
}

// OnExited marks every thread terminated.
func (m *Model) OnExited() {
	for _, t := range m.threads {
		t.exit()
	}
	m.currentFrame = nil
	m.notify()
}

// ClearFrame forgets the current frame.
func (m *Model) ClearFrame() {
	m.currentFrame = nil
	m.notify()
}

// Reset forgets everything learned from the connection.
func (m *Model) Reset() {
	m.threads = nil
	m.current, m.hasCurrent = 0, false
	m.currentFrame = nil
	m.state = requestIdle
	m.pending = threadRequest{}
	m.sources.Purge()
	m.notify()
}

// SetCurrentThread makes id current and moves to its top frame, fetching
// the stack if needed. It reports whether the thread exists.
func (m *Model) SetCurrentThread(id int) bool {
	t := m.thread(id)
	if t == nil {
		return false
	}
	m.current, m.hasCurrent = id, true
	switch {
	case t.CanExpand() && t.Frames == nil:
		m.LoadStackTrace(id, "")
	case t.CanExpand():
		m.jumpToFirstFrame(t, "")
	default:
		m.currentFrame = nil
	}
	m.notify()
	return true
}

// CurrentThread returns the current thread id.
func (m *Model) CurrentThread() (int, bool) {
	return m.current, m.hasCurrent
}

// CurrentFrame returns a copy of the current frame, or nil.
func (m *Model) CurrentFrame() *types.StackFrame {
	if m.currentFrame == nil {
		return nil
	}
	f := *m.currentFrame
	return &f
}

// ThreadState returns the state of thread id.
func (m *Model) ThreadState(id int) (types.ThreadState, bool) {
	t := m.thread(id)
	if t == nil {
		return "", false
	}
	return t.State, true
}

// AnyThreadsRunning reports whether any thread has not terminated.
func (m *Model) AnyThreadsRunning() bool {
	for _, t := range m.threads {
		if t.State != types.ThreadStateTerminated {
			return true
		}
	}
	return false
}

// Threads returns the thread list for display.
func (m *Model) Threads() []types.ThreadInfo {
	out := make([]types.ThreadInfo, 0, len(m.threads))
	for _, t := range m.threads {
		info := types.ThreadInfo{
			ID:      t.ID,
			Name:    t.Name,
			State:   t.State,
			Current: m.hasCurrent && m.current == t.ID,
			Frames:  append([]types.StackFrame(nil), t.Frames...),
		}
		if t.StopEvent != nil {
			info.StopReason = t.StopEvent.Reason
		}
		out = append(out, info)
	}
	return out
}
