// Package errors provides structured error types for dapctl.
// Each error carries a machine-readable code plus a hint that tells the
// caller (a person at the terminal or an MCP client) how to recover.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Session errors
	CodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	CodeNotRootSession      ErrorCode = "NOT_ROOT_SESSION"
	CodeNotConnected        ErrorCode = "NOT_CONNECTED"
	CodeSessionConnected    ErrorCode = "SESSION_CONNECTED"

	// Configuration errors
	CodeNoConfiguration        ErrorCode = "NO_CONFIGURATION"
	CodeConfigurationNotFound  ErrorCode = "CONFIGURATION_NOT_FOUND"
	CodeConfigurationAmbiguous ErrorCode = "CONFIGURATION_AMBIGUOUS"
	CodeUnresolvedAdapter      ErrorCode = "UNRESOLVED_ADAPTER"
	CodeInvalidVariable        ErrorCode = "INVALID_VARIABLE"
	CodeConfigInvalid          ErrorCode = "CONFIG_INVALID"
	CodeStartCancelled         ErrorCode = "START_CANCELLED"

	// Adapter and protocol errors
	CodeAdapterLaunchFailed ErrorCode = "ADAPTER_LAUNCH_FAILED"
	CodeHandshakeFailed     ErrorCode = "HANDSHAKE_FAILED"
	CodeRequestFailed       ErrorCode = "REQUEST_FAILED"
	CodeRequestTimeout      ErrorCode = "REQUEST_TIMEOUT"
	CodeConnectionClosed    ErrorCode = "CONNECTION_CLOSED"
	CodeProtocolError       ErrorCode = "PROTOCOL_ERROR"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Permission errors
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	// Runtime errors
	CodeNoThreads ErrorCode = "NO_THREADS"
)

// DebugError is a structured error type that includes helpful information
// for the caller to understand what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the invalid value, expected format)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// Is matches any DebugError carrying the same code.
func (e *DebugError) Is(target error) bool {
	var de *DebugError
	if stderrors.As(target, &de) {
		return de.Code == e.Code
	}
	return false
}

// WithDetails adds details to the error
func (e *DebugError) WithDetails(key string, value interface{}) *DebugError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *DebugError) WithCause(err error) *DebugError {
	e.Cause = err
	return e
}

// HasCode reports whether err is a DebugError with the given code.
func HasCode(err error, code ErrorCode) bool {
	var de *DebugError
	return stderrors.As(err, &de) && de.Code == code
}

// --- Session Errors ---

// SessionNotFound creates an error for when a session doesn't exist
func SessionNotFound(session string) *DebugError {
	return &DebugError{
		Code:    CodeSessionNotFound,
		Message: fmt.Sprintf("session '%s' not found", session),
		Hint:    "Use debug_list_sessions to see the existing sessions, or debug_start to create one.",
		Details: map[string]interface{}{
			"session": session,
		},
	}
}

// SessionLimitReached creates an error when max sessions is reached
func SessionLimitReached(maxSessions int) *DebugError {
	return &DebugError{
		Code:    CodeSessionLimitReached,
		Message: fmt.Sprintf("maximum number of sessions (%d) reached", maxSessions),
		Hint:    "Use debug_reset on an existing session before creating a new one.",
		Details: map[string]interface{}{
			"maxSessions": maxSessions,
		},
	}
}

// NotRootSession creates an error when a root-only operation targets a child session
func NotRootSession(id int) *DebugError {
	return &DebugError{
		Code:    CodeNotRootSession,
		Message: fmt.Sprintf("session %d is a child session", id),
		Hint:    "Child sessions are started by their parent. Start or restart the root session instead.",
		Details: map[string]interface{}{
			"sessionId": id,
		},
	}
}

// NotConnected creates an error when an operation needs a live adapter connection
func NotConnected(id int) *DebugError {
	return &DebugError{
		Code:    CodeNotConnected,
		Message: fmt.Sprintf("session %d is not connected to a debug adapter", id),
		Hint:    "Use debug_start to launch the debuggee first.",
		Details: map[string]interface{}{
			"sessionId": id,
		},
	}
}

// SessionConnected creates an error when a session must be idle but is not
func SessionConnected(id int) *DebugError {
	return &DebugError{
		Code:    CodeSessionConnected,
		Message: fmt.Sprintf("session %d is still connected", id),
		Hint:    "Use debug_stop or debug_reset before destroying the session.",
		Details: map[string]interface{}{
			"sessionId": id,
		},
	}
}

// --- Configuration Errors ---

// NoConfiguration creates an error when no launch configuration is available
func NoConfiguration(searched []string) *DebugError {
	return &DebugError{
		Code:    CodeNoConfiguration,
		Message: "no debug configurations found",
		Hint:    "Create a .dapctl.json with a \"configurations\" object in the project root.",
		Details: map[string]interface{}{
			"searched": searched,
		},
	}
}

// ConfigurationNotFound creates an error for a named configuration that does not exist
func ConfigurationNotFound(name string, available []string) *DebugError {
	var hint string
	if len(available) > 0 {
		hint = fmt.Sprintf("Available configurations: %s", strings.Join(available, ", "))
	} else {
		hint = "No configurations are defined. Create a .dapctl.json first."
	}

	return &DebugError{
		Code:    CodeConfigurationNotFound,
		Message: fmt.Sprintf("configuration '%s' not found", name),
		Hint:    hint,
		Details: map[string]interface{}{
			"configuration": name,
			"available":     available,
		},
	}
}

// ConfigurationAmbiguous creates an error when no configuration could be chosen
func ConfigurationAmbiguous(available []string) *DebugError {
	return &DebugError{
		Code:    CodeConfigurationAmbiguous,
		Message: "no configuration was selected",
		Hint:    fmt.Sprintf("Pass one of these as the configuration: %s", strings.Join(available, ", ")),
		Details: map[string]interface{}{
			"available": available,
		},
	}
}

// UnresolvedAdapter creates an error when an adapter reference cannot be resolved
func UnresolvedAdapter(name, reason string) *DebugError {
	return &DebugError{
		Code:    CodeUnresolvedAdapter,
		Message: fmt.Sprintf("cannot resolve adapter '%s': %s", name, reason),
		Hint:    "Check the \"adapter\" and \"extends\" entries of the configuration and the installed gadget files.",
		Details: map[string]interface{}{
			"adapter": name,
			"reason":  reason,
		},
	}
}

// InvalidVariable creates an error for a malformed variable definition
func InvalidVariable(name, reason string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidVariable,
		Message: fmt.Sprintf("invalid variable '%s': %s", name, reason),
		Hint:    "Variables are strings or {\"shell\": ...} objects.",
		Details: map[string]interface{}{
			"variable": name,
			"reason":   reason,
		},
	}
}

// ConfigInvalid creates an error for an unreadable configuration file
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration file '%s' is invalid: %s", path, reason),
		Hint:    "Check the file for syntax errors.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// StartCancelled creates an error when a start attempt is abandoned at a prompt
func StartCancelled(missing []string) *DebugError {
	e := &DebugError{
		Code:    CodeStartCancelled,
		Message: "debug session start cancelled",
		Hint:    "Provide the missing values via the variables parameter as a JSON object, e.g., {\"name\": \"value\"}",
	}
	if len(missing) > 0 {
		e.Message = fmt.Sprintf("debug session start cancelled, missing values: %s", strings.Join(missing, ", "))
		e.WithDetails("missing", missing)
	}
	return e
}

// --- Adapter and Protocol Errors ---

// AdapterLaunchFailed creates an error when the adapter never comes up
func AdapterLaunchFailed(adapter string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterLaunchFailed,
		Message: fmt.Sprintf("failed to launch debug adapter %s: %v", adapter, err),
		Hint:    "Ensure the debug adapter is installed. For Go: go install github.com/go-delve/delve/cmd/dlv@latest. For Python: pip install debugpy.",
		Cause:   err,
		Details: map[string]interface{}{
			"adapter": adapter,
		},
	}
}

// HandshakeFailed creates an error for a failure inside the initialization handshake
func HandshakeFailed(command, reason string) *DebugError {
	return &DebugError{
		Code:    CodeHandshakeFailed,
		Message: fmt.Sprintf("%s failed: %s", command, reason),
		Hint:    "The debuggee could not be started. Check the program path and arguments of the configuration, then use debug_reset and debug_start.",
		Details: map[string]interface{}{
			"command": command,
			"reason":  reason,
		},
	}
}

// RequestFailed creates an error for a failure response from the adapter
func RequestFailed(command, reason string) *DebugError {
	return &DebugError{
		Code:    CodeRequestFailed,
		Message: fmt.Sprintf("%s request failed: %s", command, reason),
		Details: map[string]interface{}{
			"command": command,
			"reason":  reason,
		},
	}
}

// RequestTimeout creates an error for a request the adapter never answered
func RequestTimeout(command string, timeout time.Duration) *DebugError {
	return &DebugError{
		Code:    CodeRequestTimeout,
		Message: fmt.Sprintf("%s timed out after %s", command, timeout),
		Hint:    "The adapter may be stuck. Use debug_pause to interrupt execution or debug_reset to start over.",
		Details: map[string]interface{}{
			"command": command,
			"timeout": timeout.String(),
		},
	}
}

// ConnectionClosed creates an error for requests outstanding when the adapter went away
func ConnectionClosed(command string) *DebugError {
	return &DebugError{
		Code:    CodeConnectionClosed,
		Message: fmt.Sprintf("connection closed before %s completed", command),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// ProtocolError creates an error for a malformed message from the adapter
func ProtocolError(reason string) *DebugError {
	return &DebugError{
		Code:    CodeProtocolError,
		Message: fmt.Sprintf("protocol error: %s", reason),
	}
}

// --- Parameter Errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Permission Errors ---

// PermissionDenied creates an error for an operation disabled by the server mode
func PermissionDenied(operation, mode string) *DebugError {
	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current server mode", operation),
		Hint:    fmt.Sprintf("This operation is not allowed in '%s' mode. Set \"mode\": \"full\" in the configuration to enable it.", mode),
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Runtime Errors ---

// NoThreads creates an error when no current thread is selected
func NoThreads() *DebugError {
	return &DebugError{
		Code:    CodeNoThreads,
		Message: "no current thread",
		Hint:    "The program may have terminated or not stopped yet. Use debug_threads to check the session state.",
	}
}

// --- Helper for wrapping generic errors ---

// Wrap wraps a generic error with context
func Wrap(code ErrorCode, message string, hint string, err error) *DebugError {
	return &DebugError{
		Code:    code,
		Message: message,
		Hint:    hint,
		Cause:   err,
	}
}
