package dap

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/logflags"
)

// EventHandler receives the body of an event.
type EventHandler func(body json.RawMessage)

// RequestHandler receives a reverse request from the adapter and reports
// whether it handled it. Handlers are responsible for calling DoResponse.
type RequestHandler func(msg *Message) bool

// Dispatcher routes incoming events and reverse requests by name. Messages
// with no registered handler are logged and ignored; unhandled requests are
// answered with an error by the Conn.
type Dispatcher struct {
	events   map[string]EventHandler
	requests map[string]RequestHandler
	onClose  []func()
	log      *logrus.Entry
}

// NewDispatcher returns an empty dispatch table.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		events:   make(map[string]EventHandler),
		requests: make(map[string]RequestHandler),
		log:      logflags.DAPLogger(),
	}
}

// OnEvent registers the handler for an event name, replacing any previous one.
func (d *Dispatcher) OnEvent(name string, h EventHandler) {
	d.events[name] = h
}

// OnRequest registers the handler for a reverse request command.
func (d *Dispatcher) OnRequest(command string, h RequestHandler) {
	d.requests[command] = h
}

// OnClose registers a function called once the connection has closed and
// every pending request has been failed.
func (d *Dispatcher) OnClose(fn func()) {
	d.onClose = append(d.onClose, fn)
}

// DispatchEvent calls the handler for msg.Event.
func (d *Dispatcher) DispatchEvent(msg *Message) {
	h, ok := d.events[msg.Event]
	if !ok {
		d.log.Debugf("unhandled event %q", msg.Event)
		return
	}
	h(msg.Body)
}

// DispatchRequest calls the handler for msg.Command and reports whether the
// request was handled.
func (d *Dispatcher) DispatchRequest(msg *Message) bool {
	h, ok := d.requests[msg.Command]
	if !ok {
		d.log.Warnf("unhandled reverse request %q", msg.Command)
		return false
	}
	return h(msg)
}

// Closed runs the close handlers. Conn calls it once the connection is
// gone; owners of other Connection implementations call it themselves.
func (d *Dispatcher) Closed() {
	for _, fn := range d.onClose {
		fn()
	}
}
