package dap

import (
	"encoding/json"

	"github.com/google/go-dap"
)

// Message is the envelope shared by every protocol message. Bodies and
// arguments stay raw so that commands the go-dap registry does not know
// (startDebugging, adapter-specific requests) pass through unchanged; typed
// bodies are decoded on demand with DecodeBody.
type Message struct {
	Seq        int             `json:"seq"`
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	Event      string          `json:"event,omitempty"`
	RequestSeq int             `json:"request_seq,omitempty"`
	Success    *bool           `json:"success,omitempty"`
	Message    string          `json:"message,omitempty"`
	Arguments  json.RawMessage `json:"arguments,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Request is an outgoing request before it is assigned a sequence number.
type Request struct {
	Command   string
	Arguments interface{}
}

// Succeeded reports whether a response message indicates success.
func (m *Message) Succeeded() bool {
	return m.Success != nil && *m.Success
}

// FailureReason extracts the most descriptive error text from a failed
// response: the formatted error in the body if present, else the message.
func (m *Message) FailureReason() string {
	if len(m.Body) > 0 {
		var body struct {
			Error *dap.ErrorMessage `json:"error"`
		}
		if err := json.Unmarshal(m.Body, &body); err == nil && body.Error != nil && body.Error.Format != "" {
			return body.Error.Format
		}
	}
	if m.Message != "" {
		return m.Message
	}
	return "unknown error"
}

// DecodeBody unmarshals a raw body into v. An empty body leaves v untouched.
func DecodeBody(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}
