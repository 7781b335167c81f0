package dap

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	body   json.RawMessage
	reason string
	ok     bool
}

func newPipeConn(t *testing.T, d *Dispatcher, timeout time.Duration) (*Conn, *Transport) {
	t.Helper()
	client, server := net.Pipe()
	loop := NewLoop()
	conn := NewConn(NewTransport(client), loop, d, timeout)
	adapter := NewTransport(server)
	t.Cleanup(func() {
		conn.Close()
		adapter.Close()
		loop.Stop()
	})
	return conn, adapter
}

func request(conn *Conn, cmd string, args interface{}, timeout time.Duration) chan result {
	ch := make(chan result, 1)
	conn.DoRequest(Request{Command: cmd, Arguments: args},
		func(body json.RawMessage) { ch <- result{body: body, ok: true} },
		func(reason string, msg *Message) { ch <- result{reason: reason} },
		timeout)
	return ch
}

func respond(t *testing.T, adapter *Transport, req *Message, success bool, body interface{}, message string) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	require.NoError(t, adapter.Send(&Message{
		Seq:        100 + req.Seq,
		Type:       "response",
		RequestSeq: req.Seq,
		Command:    req.Command,
		Success:    &success,
		Message:    message,
		Body:       raw,
	}))
}

func wait(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
		return result{}
	}
}

// TestConn_RequestResponse verifies a successful response reaches onSuccess with its body.
func TestConn_RequestResponse(t *testing.T) {
	conn, adapter := newPipeConn(t, NewDispatcher(), 0)

	go func() {
		req, err := adapter.Receive()
		if err != nil {
			return
		}
		respond(t, adapter, req, true, dap.ThreadsResponseBody{Threads: []dap.Thread{{Id: 1, Name: "main"}}}, "")
	}()

	r := wait(t, request(conn, "threads", nil, 0))
	require.True(t, r.ok)

	var body dap.ThreadsResponseBody
	require.NoError(t, DecodeBody(r.body, &body))
	assert.Equal(t, "main", body.Threads[0].Name)
}

// TestConn_OutOfOrderResponses verifies correlation is by request identity.
func TestConn_OutOfOrderResponses(t *testing.T) {
	conn, adapter := newPipeConn(t, NewDispatcher(), 0)

	reqs := make(chan *Message, 2)
	go func() {
		for i := 0; i < 2; i++ {
			req, err := adapter.Receive()
			if err != nil {
				return
			}
			reqs <- req
		}
	}()

	first := request(conn, "first", nil, 0)
	second := request(conn, "second", nil, 0)
	a, b := <-reqs, <-reqs

	respond(t, adapter, b, true, map[string]string{"from": b.Command}, "")
	respond(t, adapter, a, true, map[string]string{"from": a.Command}, "")

	assert.JSONEq(t, `{"from":"first"}`, string(wait(t, first).body))
	assert.JSONEq(t, `{"from":"second"}`, string(wait(t, second).body))
}

// TestConn_FailureResponse verifies failures carry the adapter's formatted error.
func TestConn_FailureResponse(t *testing.T) {
	conn, adapter := newPipeConn(t, NewDispatcher(), 0)

	go func() {
		req, err := adapter.Receive()
		if err != nil {
			return
		}
		respond(t, adapter, req, false, map[string]interface{}{
			"error": map[string]interface{}{"id": 3000, "format": "could not launch process"},
		}, "launch failed")
	}()

	r := wait(t, request(conn, "launch", map[string]string{"program": "x"}, 0))
	assert.False(t, r.ok)
	assert.Equal(t, "could not launch process", r.reason)
}

// TestConn_Timeout verifies an unanswered request fails once its timeout expires.
func TestConn_Timeout(t *testing.T) {
	conn, adapter := newPipeConn(t, NewDispatcher(), 0)
	go adapter.Receive()

	r := wait(t, request(conn, "disconnect", nil, 20*time.Millisecond))
	assert.False(t, r.ok)
	assert.Contains(t, r.reason, "timed out")
}

// TestConn_CloseFailsPending verifies closing the connection fails every outstanding request.
func TestConn_CloseFailsPending(t *testing.T) {
	d := NewDispatcher()
	closed := make(chan struct{})
	d.OnClose(func() { close(closed) })
	conn, adapter := newPipeConn(t, d, 0)

	go func() {
		for {
			if _, err := adapter.Receive(); err != nil {
				return
			}
		}
	}()

	a := request(conn, "threads", nil, 0)
	b := request(conn, "stackTrace", nil, 0)
	require.NoError(t, adapter.Close())

	assert.Equal(t, ReasonClosed, wait(t, a).reason)
	assert.Equal(t, ReasonClosed, wait(t, b).reason)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close handler not invoked")
	}

	// requests after close fail too
	assert.Equal(t, ReasonClosed, wait(t, request(conn, "threads", nil, 0)).reason)
}

// TestConn_EventDispatch verifies events reach the registered handler.
func TestConn_EventDispatch(t *testing.T) {
	d := NewDispatcher()
	got := make(chan dap.StoppedEventBody, 1)
	d.OnEvent("stopped", func(body json.RawMessage) {
		var ev dap.StoppedEventBody
		if DecodeBody(body, &ev) == nil {
			got <- ev
		}
	})
	_, adapter := newPipeConn(t, d, 0)

	raw, _ := json.Marshal(dap.StoppedEventBody{Reason: "breakpoint", ThreadId: 7})
	require.NoError(t, adapter.Send(&Message{Seq: 1, Type: "event", Event: "stopped", Body: raw}))

	select {
	case ev := <-got:
		assert.Equal(t, 7, ev.ThreadId)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
}

// TestConn_UnhandledReverseRequest verifies unknown reverse requests are refused.
func TestConn_UnhandledReverseRequest(t *testing.T) {
	_, adapter := newPipeConn(t, NewDispatcher(), 0)

	require.NoError(t, adapter.Send(&Message{Seq: 5, Type: "request", Command: "frobnicate"}))
	resp, err := adapter.Receive()
	require.NoError(t, err)
	assert.Equal(t, "response", resp.Type)
	assert.Equal(t, 5, resp.RequestSeq)
	assert.False(t, resp.Succeeded())
	assert.Contains(t, resp.Message, "frobnicate")
}

// TestConn_HandledReverseRequest verifies a handler can answer a reverse request.
func TestConn_HandledReverseRequest(t *testing.T) {
	d := NewDispatcher()
	var conn *Conn
	d.OnRequest("runInTerminal", func(msg *Message) bool {
		conn.DoResponse(msg, nil, dap.RunInTerminalResponseBody{ProcessId: 42})
		return true
	})
	conn, adapter := newPipeConn(t, d, 0)

	require.NoError(t, adapter.Send(&Message{Seq: 9, Type: "request", Command: "runInTerminal"}))
	resp, err := adapter.Receive()
	require.NoError(t, err)
	assert.True(t, resp.Succeeded())
	assert.JSONEq(t, `{"processId":42}`, string(resp.Body))
}
