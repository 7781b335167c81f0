// Package adapters starts debug adapters and provides the built-in adapter
// specs.
//
// An adapter spec is a JSON object, usually from a .dapctl.json or gadget
// file, in one of three forms:
//   - {"command": [...]}: a process speaking DAP on its stdin/stdout
//   - {"command": [...], "port": N}: a process listening on a TCP port
//   - {"port": N, "host": "..."}: an adapter that is already running
//
// "cwd" and "env" apply to the process. "port": "ask" asks the user.
//
// Built-in specs cover:
//   - Go (via Delve)
//   - Python (via debugpy)
//   - JavaScript/TypeScript (via vscode-js-debug for Node.js and browser targets)
//   - C, C++, Rust (via lldb-dap or gdb)
package adapters

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/prompt"
)

const (
	// DefaultHost is used when a TCP spec names no host.
	DefaultHost = "127.0.0.1"

	connectRetries  = 20
	connectInterval = 200 * time.Millisecond
)

// Spec is a parsed adapter spec.
type Spec struct {
	Name    string
	Command []string
	Cwd     string
	Env     map[string]string
	Host    string
	Port    int
}

// Stdio reports whether the adapter talks over the process's stdio.
func (s *Spec) Stdio() bool {
	return s.Port == 0
}

// Address is host:port for TCP adapters.
func (s *Spec) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ParseSpec reads an expanded adapter object. p answers "port": "ask" and
// may be nil otherwise.
func ParseSpec(name string, adapter launchconfig.Object, p prompt.Prompter) (*Spec, error) {
	s := &Spec{Name: name, Host: DefaultHost}

	switch c := adapter["command"].(type) {
	case nil:
	case string:
		words, err := launchconfig.SplitWords(c)
		if err != nil {
			return nil, fmt.Errorf("invalid command: %w", err)
		}
		s.Command = words
	case []interface{}:
		for _, w := range c {
			s.Command = append(s.Command, fmt.Sprint(w))
		}
	default:
		return nil, fmt.Errorf("command must be a string or a list")
	}

	if cwd, ok := adapter["cwd"].(string); ok {
		s.Cwd = cwd
	}
	if env, ok := adapter["env"].(map[string]interface{}); ok {
		s.Env = make(map[string]string, len(env))
		for k, v := range env {
			s.Env[k] = fmt.Sprint(v)
		}
	}
	if host, ok := adapter["host"].(string); ok && host != "" {
		s.Host = host
	}

	port, err := parsePort(adapter["port"], p)
	if err != nil {
		return nil, err
	}
	s.Port = port

	if len(s.Command) == 0 && s.Port == 0 {
		return nil, fmt.Errorf("adapter %s has neither a command nor a port", name)
	}
	return s, nil
}

func parsePort(v interface{}, p prompt.Prompter) (int, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case string:
		if t == "ask" {
			if p == nil {
				return 0, prompt.ErrCancelled
			}
			answer, err := p.Ask("Port: ", "")
			if err != nil {
				return 0, err
			}
			t = answer
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || n <= 0 || n > 65535 {
			return 0, fmt.Errorf("invalid port %q", t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid port %v", v)
}

// Adapter is a started adapter: its transport and, when it was spawned, its
// process.
type Adapter struct {
	Spec      *Spec
	Transport *dap.Transport

	cmd    *exec.Cmd
	exited chan struct{}
	log    *logrus.Entry
}

// Pid returns the adapter process id, or 0 for an adapter we connected to.
func (a *Adapter) Pid() int {
	if a.cmd == nil || a.cmd.Process == nil {
		return 0
	}
	return a.cmd.Process.Pid
}

// Exited is closed when the adapter process exits. It is nil for adapters
// we did not spawn.
func (a *Adapter) Exited() <-chan struct{} {
	return a.exited
}

// Kill terminates the adapter process group.
func (a *Adapter) Kill() error {
	if a.cmd == nil {
		return nil
	}
	return killProcessGroup(a.Pid(), a.cmd)
}

// Launch starts the adapter described by spec and connects to it.
func Launch(ctx context.Context, spec *Spec) (*Adapter, error) {
	a := &Adapter{
		Spec: spec,
		log:  logflags.SessionLogger().WithField("adapter", spec.Name),
	}

	if len(spec.Command) == 0 {
		t, err := connect(ctx, spec.Address(), connectRetries)
		if err != nil {
			return nil, err
		}
		a.Transport = t
		return a, nil
	}

	//nolint:gosec // G204: starting the configured adapter is the point
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Cwd
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	logw := a.log.WriterLevel(logrus.DebugLevel)
	cmd.Stderr = logw
	// Set platform-specific process attributes (procattr_unix.go / procattr_windows.go)
	setProcAttr(cmd)
	a.cmd = cmd

	var stdin io.WriteCloser
	if spec.Stdio() {
		in, err := cmd.StdinPipe()
		if err != nil {
			_ = logw.Close()
			return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			_ = in.Close()
			_ = logw.Close()
			return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
		}
		stdin = in
		a.Transport = dap.NewStdioTransport(in, out)
	} else {
		cmd.Stdout = logw
	}

	if err := cmd.Start(); err != nil {
		if stdin != nil {
			_ = stdin.Close()
		}
		_ = logw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command[0], err)
	}
	a.log.Debugf("started %v (pid %d)", spec.Command, cmd.Process.Pid)

	a.exited = make(chan struct{})
	go func() {
		err := cmd.Wait()
		_ = logw.Close()
		a.log.Debugf("adapter process exited: %v", err)
		close(a.exited)
	}()

	if spec.Stdio() {
		return a, nil
	}

	t, err := connect(ctx, spec.Address(), connectRetries)
	if err != nil {
		_ = a.Kill()
		return nil, err
	}
	a.Transport = t
	return a, nil
}

// connect dials address, retrying while the adapter starts listening.
func connect(ctx context.Context, address string, maxRetries int) (*dap.Transport, error) {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		t, err := dap.NewTCPTransport(address, time.Second)
		if err == nil {
			return t, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectInterval):
		}
	}
	return nil, fmt.Errorf("failed to connect to debug adapter at %s: %w", address, lastErr)
}

// IsCancelled reports whether err is a cancelled "port": "ask" prompt.
func IsCancelled(err error) bool {
	return stderrors.Is(err, prompt.ErrCancelled)
}
