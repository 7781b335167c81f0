// Package daptest provides an in-memory Connection for tests of code that
// talks to a debug adapter.
package daptest

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	internaldap "github.com/ctagard/dapctl/internal/dap"
)

// Handler answers a request automatically. Returning an error fails it.
type Handler func(args json.RawMessage) (interface{}, error)

// Call is one request issued through a FakeConn.
type Call struct {
	Seq       int
	Command   string
	Arguments json.RawMessage
	Timeout   time.Duration

	onSuccess internaldap.SuccessFunc
	onFailure internaldap.FailureFunc
	completed bool
}

// Completed reports whether the call has received a response.
func (c *Call) Completed() bool {
	return c.completed
}

// Args decodes the call's arguments into v.
func (c *Call) Args(v interface{}) error {
	return internaldap.DecodeBody(c.Arguments, v)
}

// Response is one answer to a reverse request.
type Response struct {
	Request *internaldap.Message
	Err     error
	Body    interface{}
}

// FakeConn records requests and lets the test complete them in any order.
// Requests with a registered Handler are answered by Drain; the others stay
// pending until Succeed or Fail is called.
type FakeConn struct {
	ID string

	mu        sync.Mutex
	seq       int
	calls     []*Call
	queue     []*Call
	handlers  map[string]Handler
	responses []Response
	closed    bool
}

// New returns a FakeConn identified by id.
func New(id string) *FakeConn {
	return &FakeConn{ID: id, handlers: make(map[string]Handler)}
}

// Handle registers an automatic answer for command.
func (f *FakeConn) Handle(command string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[command] = h
}

// HandleOK answers command successfully with body.
func (f *FakeConn) HandleOK(command string, body interface{}) {
	f.Handle(command, func(json.RawMessage) (interface{}, error) { return body, nil })
}

// SessionID implements Connection.
func (f *FakeConn) SessionID() string {
	return f.ID
}

// DoRequest implements Connection. Requests on a closed connection fail
// immediately.
func (f *FakeConn) DoRequest(req internaldap.Request, onSuccess internaldap.SuccessFunc, onFailure internaldap.FailureFunc, timeout time.Duration) {
	raw, err := json.Marshal(req.Arguments)
	if err != nil {
		panic(fmt.Sprintf("daptest: cannot encode %s arguments: %v", req.Command, err))
	}
	f.mu.Lock()
	f.seq++
	c := &Call{
		Seq:       f.seq,
		Command:   req.Command,
		Arguments: raw,
		Timeout:   timeout,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}
	f.calls = append(f.calls, c)
	closed := f.closed
	_, auto := f.handlers[req.Command]
	if auto && !closed {
		f.queue = append(f.queue, c)
	}
	f.mu.Unlock()

	if closed {
		f.Fail(c, internaldap.ReasonClosed)
	}
}

// DoResponse implements Connection.
func (f *FakeConn) DoResponse(req *internaldap.Message, err error, body interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, Response{Request: req, Err: err, Body: body})
}

// Close implements Connection. Every pending call fails.
func (f *FakeConn) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	f.queue = nil
	var pending []*Call
	for _, c := range f.calls {
		if !c.completed {
			pending = append(pending, c)
		}
	}
	f.mu.Unlock()

	for _, c := range pending {
		f.Fail(c, internaldap.ReasonClosed)
	}
	return nil
}

// Closed reports whether Close was called.
func (f *FakeConn) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Drain answers queued calls through their handlers until none are left,
// including calls issued by the callbacks themselves.
func (f *FakeConn) Drain() {
	for {
		f.mu.Lock()
		if len(f.queue) == 0 {
			f.mu.Unlock()
			return
		}
		c := f.queue[0]
		f.queue = f.queue[1:]
		h := f.handlers[c.Command]
		f.mu.Unlock()

		if c.completed {
			continue
		}
		body, err := h(c.Arguments)
		if err != nil {
			f.Fail(c, err.Error())
			continue
		}
		f.Succeed(c, body)
	}
}

// Succeed completes c with body.
func (f *FakeConn) Succeed(c *Call, body interface{}) {
	if c.completed {
		return
	}
	c.completed = true
	raw, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("daptest: cannot encode %s body: %v", c.Command, err))
	}
	if c.onSuccess != nil {
		c.onSuccess(raw)
	}
}

// Fail completes c with a failure.
func (f *FakeConn) Fail(c *Call, reason string) {
	if c.completed {
		return
	}
	c.completed = true
	if c.onFailure != nil {
		c.onFailure(reason, nil)
	}
}

// Calls returns every call issued so far, optionally restricted to command.
func (f *FakeConn) Calls(command string) []*Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Call
	for _, c := range f.calls {
		if command == "" || c.Command == command {
			out = append(out, c)
		}
	}
	return out
}

// Pending returns the calls still waiting for a response.
func (f *FakeConn) Pending(command string) []*Call {
	var out []*Call
	for _, c := range f.Calls(command) {
		if !c.completed {
			out = append(out, c)
		}
	}
	return out
}

// Commands returns the command names issued so far, in order.
func (f *FakeConn) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.Command)
	}
	return out
}

// Responses returns the answers given to reverse requests.
func (f *FakeConn) Responses() []Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Response(nil), f.responses...)
}

var _ internaldap.Connection = (*FakeConn)(nil)
