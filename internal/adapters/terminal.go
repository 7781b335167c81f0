package adapters

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/logflags"
)

// Terminal is a debuggee started for a runInTerminal request.
type Terminal struct {
	cmd  *exec.Cmd
	tty  io.Closer
	done chan struct{}
	once sync.Once
	log  *logrus.Entry
}

// Pid returns the process id reported back to the adapter.
func (t *Terminal) Pid() int {
	return t.cmd.Process.Pid
}

// Done is closed when the process has exited and its output is drained.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}

// Close kills the process if it is still running.
func (t *Terminal) Close() error {
	var err error
	t.once.Do(func() {
		select {
		case <-t.done:
		default:
			err = killProcessGroup(t.Pid(), t.cmd)
		}
		if t.tty != nil {
			_ = t.tty.Close()
		}
	})
	return err
}

// terminalCommand builds the command for a runInTerminal request. A null
// value in env removes the variable.
func terminalCommand(args dap.RunInTerminalRequestArguments, defaultCwd string) (*exec.Cmd, error) {
	if len(args.Args) == 0 {
		return nil, fmt.Errorf("runInTerminal: no command")
	}
	//nolint:gosec // G204: the adapter asked for this command to be run
	cmd := exec.Command(args.Args[0], args.Args[1:]...)
	cmd.Dir = args.Cwd
	if cmd.Dir == "" {
		cmd.Dir = defaultCwd
	}

	env := make(map[string]string)
	var order []string
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = v
	}
	for k, v := range args.Env {
		if v == nil {
			delete(env, k)
			continue
		}
		if _, seen := env[k]; !seen {
			order = append(order, k)
		}
		env[k] = fmt.Sprint(v)
	}
	for _, k := range order {
		if v, ok := env[k]; ok {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return cmd, nil
}

// RunInTerminal starts the requested command attached to a new terminal
// whose output is copied to out. cwd defaults to defaultCwd.
func RunInTerminal(args dap.RunInTerminalRequestArguments, defaultCwd string, out io.Writer) (*Terminal, error) {
	cmd, err := terminalCommand(args, defaultCwd)
	if err != nil {
		return nil, err
	}
	t := &Terminal{
		cmd:  cmd,
		done: make(chan struct{}),
		log:  logflags.SessionLogger().WithField("terminal", args.Title),
	}
	if err := startInTerminal(t, out); err != nil {
		return nil, err
	}
	t.log.Debugf("started %v (pid %d)", args.Args, t.Pid())
	return t, nil
}
