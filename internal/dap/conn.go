package dap

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/logflags"
)

// DefaultTimeout applies to requests issued with a zero timeout.
const DefaultTimeout = 30 * time.Second

// ReasonClosed is the failure reason given to requests still outstanding
// when the connection goes away.
const ReasonClosed = "connection closed"

// SuccessFunc receives the body of a successful response.
type SuccessFunc func(body json.RawMessage)

// FailureFunc receives the reason for a failed request. msg is nil when the
// failure did not come from the adapter (timeout, closed connection).
type FailureFunc func(reason string, msg *Message)

// Connection is the request/response surface a session uses to talk to one
// adapter.
type Connection interface {
	// DoRequest sends req. Exactly one of onSuccess or onFailure is invoked
	// later on the connection's executor. A zero timeout uses the default.
	DoRequest(req Request, onSuccess SuccessFunc, onFailure FailureFunc, timeout time.Duration)

	// DoResponse answers a reverse request from the adapter.
	DoResponse(req *Message, err error, body interface{})

	// SessionID identifies the connection in per-connection state.
	SessionID() string

	// Close tears the connection down and fails every pending request.
	Close() error
}

type pendingRequest struct {
	command   string
	onSuccess SuccessFunc
	onFailure FailureFunc
	timer     *time.Timer
}

// Conn is the Connection implementation over a Transport.
type Conn struct {
	id        string
	transport *Transport
	exec      Executor
	dispatch  *Dispatcher
	timeout   time.Duration
	log       *logrus.Entry

	mu      sync.Mutex
	seq     int
	pending map[int]*pendingRequest
	closed  bool

	wg sync.WaitGroup
}

// NewConn starts reading from t. Responses, events and reverse requests are
// delivered through exec; d receives events, requests and the close
// notification.
func NewConn(t *Transport, exec Executor, d *Dispatcher, timeout time.Duration) *Conn {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	id := uuid.New().String()
	c := &Conn{
		id:        id,
		transport: t,
		exec:      exec,
		dispatch:  d,
		timeout:   timeout,
		log:       logflags.DAPLogger().WithField("conn", id[:8]),
		seq:       1,
		pending:   make(map[int]*pendingRequest),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// SessionID returns the connection's identity.
func (c *Conn) SessionID() string {
	return c.id
}

// DoRequest sends a request and registers its callbacks.
func (c *Conn) DoRequest(req Request, onSuccess SuccessFunc, onFailure FailureFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	p := &pendingRequest{
		command:   req.Command,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}

	args, err := marshalRaw(req.Arguments)
	if err != nil {
		c.fail(p, fmt.Sprintf("invalid arguments: %v", err), nil)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.fail(p, ReasonClosed, nil)
		return
	}
	seq := c.seq
	c.seq++
	c.pending[seq] = p
	p.timer = time.AfterFunc(timeout, func() {
		if p := c.take(seq); p != nil {
			c.fail(p, errors.RequestTimeout(p.command, timeout).Error(), nil)
		}
	})
	c.mu.Unlock()

	msg := &Message{
		Seq:       seq,
		Type:      "request",
		Command:   req.Command,
		Arguments: args,
	}
	c.log.Debugf("-> %s (seq %d)", req.Command, seq)
	if err := c.transport.Send(msg); err != nil {
		if p := c.take(seq); p != nil {
			c.fail(p, err.Error(), nil)
		}
	}
}

// DoResponse answers a reverse request. A non-nil err produces a failure
// response carrying its text.
func (c *Conn) DoResponse(req *Message, err error, body interface{}) {
	success := err == nil
	msg := &Message{
		Type:       "response",
		RequestSeq: req.Seq,
		Command:    req.Command,
		Success:    &success,
	}
	if err != nil {
		msg.Message = err.Error()
	}
	raw, merr := marshalRaw(body)
	if merr != nil {
		c.log.Errorf("failed to encode response to %s: %v", req.Command, merr)
		return
	}
	msg.Body = raw

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	msg.Seq = c.seq
	c.seq++
	c.mu.Unlock()

	if err := c.transport.Send(msg); err != nil {
		c.log.Warnf("failed to respond to %s: %v", req.Command, err)
	}
}

// Close closes the transport. Pending requests fail and the dispatcher's
// close handlers run once the read loop has drained.
func (c *Conn) Close() error {
	err := c.transport.Close()
	c.shutdown()
	return err
}

// Wait blocks until the read loop has exited.
func (c *Conn) Wait() {
	c.wg.Wait()
}

// readLoop continuously reads messages from the transport
func (c *Conn) readLoop() {
	defer c.wg.Done()
	defer c.shutdown()

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		msg, err := c.transport.Receive()
		if err != nil {
			if c.isClosed() || isStreamEnd(err) {
				return
			}
			consecutiveErrors++
			c.log.Warnf("%v (attempt %d/%d)", errors.ProtocolError(err.Error()), consecutiveErrors, maxConsecutiveErrors)
			if consecutiveErrors >= maxConsecutiveErrors {
				c.log.Errorf("too many consecutive errors, closing connection")
				c.transport.Close()
				return
			}
			continue
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// handleMessage routes incoming messages to the appropriate handler
func (c *Conn) handleMessage(msg *Message) {
	switch msg.Type {
	case "response":
		p := c.take(msg.RequestSeq)
		if p == nil {
			c.log.Debugf("response to unknown or expired request %d (%s)", msg.RequestSeq, msg.Command)
			return
		}
		c.log.Debugf("<- %s response (seq %d, success %v)", p.command, msg.RequestSeq, msg.Succeeded())
		if msg.Succeeded() {
			c.exec.Post(func() {
				if p.onSuccess != nil {
					p.onSuccess(msg.Body)
				}
			})
			return
		}
		c.fail(p, msg.FailureReason(), msg)

	case "event":
		c.exec.Post(func() { c.dispatch.DispatchEvent(msg) })

	case "request":
		c.exec.Post(func() {
			if !c.dispatch.DispatchRequest(msg) {
				c.DoResponse(msg, fmt.Errorf("unsupported request: %s", msg.Command), nil)
			}
		})

	default:
		c.log.Warnf("ignoring message of unknown type %q", msg.Type)
	}
}

// take removes and returns the pending request for seq, or nil if it has
// already completed.
func (c *Conn) take(seq int) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[seq]
	if !ok {
		return nil
	}
	delete(c.pending, seq)
	if p.timer != nil {
		p.timer.Stop()
	}
	return p
}

func (c *Conn) fail(p *pendingRequest, reason string, msg *Message) {
	c.exec.Post(func() {
		if p.onFailure != nil {
			p.onFailure(reason, msg)
			return
		}
		c.log.Warnf("%s failed: %s", p.command, reason)
	})
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown marks the connection closed, fails everything outstanding and
// notifies the dispatcher. Safe to call more than once.
func (c *Conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[int]*pendingRequest)
	c.mu.Unlock()

	seqs := make([]int, 0, len(pending))
	for seq := range pending {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	for _, seq := range seqs {
		p := pending[seq]
		if p.timer != nil {
			p.timer.Stop()
		}
		c.fail(p, ReasonClosed, nil)
	}
	c.exec.Post(c.dispatch.Closed)
}

func isStreamEnd(err error) bool {
	return stderrors.Is(err, io.EOF) ||
		stderrors.Is(err, io.ErrUnexpectedEOF) ||
		stderrors.Is(err, net.ErrClosed) ||
		stderrors.Is(err, os.ErrClosed) ||
		stderrors.Is(err, io.ErrClosedPipe)
}

func marshalRaw(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
