// Package logflags configures the per-layer loggers used across dapctl.
//
// Every subsystem logs through a *logrus.Entry tagged with a "layer" field so
// the output of a session can be filtered by origin. Logs never go to stdout:
// stdout carries MCP traffic when running as a server.
package logflags

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
)

var (
	mu     sync.Mutex
	root   = newRoot(colorable.NewColorableStderr(), logrus.InfoLevel)
	closer io.Closer
)

func newRoot(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.Out = out
	l.Level = level
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	}
	return l
}

// Setup sets the level of every logger and optionally redirects output to
// logFile. An empty level keeps the current one.
func Setup(level, logFile string) error {
	mu.Lock()
	defer mu.Unlock()

	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		root.SetLevel(lvl)
	}

	if logFile == "" {
		return nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logFile, err)
	}
	if closer != nil {
		closer.Close()
	}
	closer = f
	root.SetOutput(f)
	return nil
}

// SetOutput replaces the destination of every logger. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root.SetOutput(w)
}

// Close releases the log file opened by Setup, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	root.SetOutput(colorable.NewColorableStderr())
	return err
}

func makeLogger(fields logrus.Fields) *logrus.Entry {
	return root.WithFields(fields)
}

// DAPLogger returns the logger for the wire layer.
func DAPLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "dap"})
}

// SessionLogger returns the logger for session orchestration.
func SessionLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "session"})
}

// BreakpointsLogger returns the logger for breakpoint reconciliation.
func BreakpointsLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "breakpoints"})
}

// ThreadsLogger returns the logger for thread and frame tracking.
func ThreadsLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "threads"})
}

// LaunchLogger returns the logger for configuration resolution and adapter startup.
func LaunchLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "launch"})
}

// MCPLogger returns the logger for the MCP tool server.
func MCPLogger() *logrus.Entry {
	return makeLogger(logrus.Fields{"layer": "mcp"})
}
