// Package dap implements the client side of the Debug Adapter Protocol (DAP)
// wire layer used by dapctl sessions.
//
// This package provides:
//   - Transport: framed message sending/receiving over TCP or an adapter's stdio
//   - Conn: request/response correlation with per-request callbacks and timeouts
//   - Dispatcher: routing of events and reverse requests by name
//   - Loop: the single goroutine on which all callbacks run
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/go-dap"
)

// Transport handles framed communication with a DAP server
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
}

// NewTransport wraps an established stream.
func NewTransport(rwc io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   rwc,
		reader: bufio.NewReader(rwc),
		writer: bufio.NewWriter(rwc),
	}
}

// NewTCPTransport creates a transport connected to a TCP address
func NewTCPTransport(address string, timeout time.Duration) (*Transport, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DAP server at %s: %w", address, err)
	}
	return NewTransport(conn), nil
}

// NewStdioTransport creates a transport using an adapter process's stdio streams
func NewStdioTransport(stdin io.WriteCloser, stdout io.ReadCloser) *Transport {
	return NewTransport(&stdioRWC{
		reader: stdout,
		writer: stdin,
	})
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.writer.Close()
	err2 := s.reader.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send writes one framed message
func (t *Transport) Send(msg *Message) error {
	content, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode DAP message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := dap.WriteBaseMessage(t.writer, content); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive reads one framed message. Only a single goroutine may call Receive.
func (t *Transport) Receive() (*Message, error) {
	content, err := dap.ReadBaseMessage(t.reader)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(content, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode DAP message: %w", err)
	}
	return &msg, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}
