package adapters

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dapctl/internal/config"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/prompt"
)

// TestParseSpec verifies the stdio, TCP and connect-only forms.
func TestParseSpec(t *testing.T) {
	s, err := ParseSpec("py", launchconfig.Object{
		"command": []interface{}{"python3", "-m", "debugpy.adapter"},
		"cwd":     "/w",
		"env":     map[string]interface{}{"A": 1},
	}, nil)
	require.NoError(t, err)
	assert.True(t, s.Stdio())
	assert.Equal(t, []string{"python3", "-m", "debugpy.adapter"}, s.Command)
	assert.Equal(t, map[string]string{"A": "1"}, s.Env)

	s, err = ParseSpec("dlv", launchconfig.Object{"command": `dlv dap --listen "127.0.0.1:4711"`, "port": "4711"}, nil)
	require.NoError(t, err)
	assert.False(t, s.Stdio())
	assert.Equal(t, []string{"dlv", "dap", "--listen", "127.0.0.1:4711"}, s.Command)
	assert.Equal(t, "127.0.0.1:4711", s.Address())

	s, err = ParseSpec("remote", launchconfig.Object{"host": "10.0.0.2", "port": float64(5678)}, nil)
	require.NoError(t, err)
	assert.Empty(t, s.Command)
	assert.Equal(t, "10.0.0.2:5678", s.Address())

	_, err = ParseSpec("empty", launchconfig.Object{}, nil)
	assert.Error(t, err)
	_, err = ParseSpec("bad", launchconfig.Object{"port": "http"}, nil)
	assert.Error(t, err)
}

// TestParseSpec_AskPort verifies "port": "ask" prompts and honours cancellation.
func TestParseSpec_AskPort(t *testing.T) {
	pr := prompt.NewScripted("9229")
	s, err := ParseSpec("node", launchconfig.Object{"port": "ask"}, pr)
	require.NoError(t, err)
	assert.Equal(t, 9229, s.Port)
	assert.Equal(t, []string{"Port: "}, pr.Questions())

	_, err = ParseSpec("node", launchconfig.Object{"port": "ask"}, prompt.NewScripted(prompt.Cancel))
	assert.True(t, IsCancelled(err))
	_, err = ParseSpec("node", launchconfig.Object{"port": "ask"}, nil)
	assert.True(t, IsCancelled(err))
}

// TestBuiltin verifies the built-in specs reflect the adapter configuration.
func TestBuiltin(t *testing.T) {
	cfg := config.DefaultConfig().Adapters
	cfg.Go.BuildFlags = "-tags=dev"

	specs := Builtin(cfg)
	assert.Contains(t, specs, DelveName)
	assert.Contains(t, specs, DebugpyName)
	assert.Contains(t, specs, LLDBName)
	assert.Contains(t, specs, GDBName)
	assert.NotContains(t, specs, JSDebugName)
	assert.Equal(t, "-tags=dev", specs[DelveName]["configuration"].(map[string]interface{})["buildFlags"])

	cfg.Node.JsDebugPath = "/opt/js-debug/dapDebugServer.js"
	specs = Builtin(cfg)
	require.Contains(t, specs, JSDebugChromeName)
	cmd := specs[JSDebugName]["command"].([]interface{})
	assert.Equal(t, "/opt/js-debug/dapDebugServer.js", cmd[1])
}

// TestBuiltin_Expands verifies a built-in spec expands into a usable TCP spec.
func TestBuiltin_Expands(t *testing.T) {
	spec := launchconfig.DeepCopy(Builtin(config.DefaultConfig().Adapters)[DelveName])
	e := launchconfig.NewExpander(nil, launchconfig.StandardCalculus("/w", ""), nil, nil)
	require.NoError(t, e.ExpandDict(spec))

	s, err := ParseSpec(DelveName, spec, nil)
	require.NoError(t, err)
	assert.Greater(t, s.Port, 0)
	assert.Equal(t, "127.0.0.1:"+strconv.Itoa(s.Port), s.Command[3])
}

// TestDetectVenvRoot verifies interpreters inside a virtualenv are recognised.
func TestDetectVenvRoot(t *testing.T) {
	venv := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(venv, "bin"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(venv, "pyvenv.cfg"), []byte("home = /usr\n"), 0644))

	python := filepath.Join(venv, "bin", "python")
	assert.Equal(t, venv, detectVenvRoot(python))
	assert.Empty(t, detectVenvRoot("/usr/bin/python3"))

	spec := debugpySpec(config.DebugpyConfig{PythonPath: python})
	env := spec["env"].(map[string]interface{})
	assert.Equal(t, venv, env["VIRTUAL_ENV"])
}

// TestLaunch_Connect verifies connecting to an adapter that is already listening.
func TestLaunch_Connect(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	port := l.Addr().(*net.TCPAddr).Port
	a, err := Launch(context.Background(), &Spec{Name: "remote", Host: "127.0.0.1", Port: port})
	require.NoError(t, err)
	defer a.Transport.Close()
	assert.Zero(t, a.Pid())
	assert.Nil(t, a.Exited())
	assert.NoError(t, a.Kill())

	select {
	case c := <-accepted:
		c.Close()
	case <-time.After(5 * time.Second):
		t.Fatal("adapter connection was never accepted")
	}
}

// TestLaunch_Stdio verifies a stdio adapter process carries framed messages.
func TestLaunch_Stdio(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses cat")
	}
	a, err := Launch(context.Background(), &Spec{Name: "echo", Command: []string{"cat"}})
	require.NoError(t, err)
	defer a.Kill()
	assert.Greater(t, a.Pid(), 0)

	out := &internaldap.Message{Seq: 1, Type: "request", Command: "initialize"}
	require.NoError(t, a.Transport.Send(out))
	in, err := a.Transport.Receive()
	require.NoError(t, err)
	assert.Equal(t, "initialize", in.Command)

	require.NoError(t, a.Kill())
	select {
	case <-a.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("adapter process did not exit")
	}
}

// TestLaunch_BadCommand verifies a missing executable fails to start.
func TestLaunch_BadCommand(t *testing.T) {
	_, err := Launch(context.Background(), &Spec{Name: "nope", Command: []string{"/definitely/not/here"}})
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// TestRunInTerminal verifies the command runs in cwd with the requested environment.
func TestRunInTerminal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	var out syncBuffer
	term, err := RunInTerminal(dap.RunInTerminalRequestArguments{
		Title: "debuggee",
		Args:  []string{"sh", "-c", `echo "$GREETING from $(pwd)"`},
		Env:   map[string]interface{}{"GREETING": "hello"},
	}, dir, &out)
	require.NoError(t, err)
	defer term.Close()
	assert.Greater(t, term.Pid(), 0)

	select {
	case <-term.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("terminal process did not exit")
	}
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, out.String(), "hello from "+resolved)
}

// TestTerminalCommand_Env verifies null entries unset variables.
func TestTerminalCommand_Env(t *testing.T) {
	t.Setenv("DAPCTL_REMOVE_ME", "x")
	cmd, err := terminalCommand(dap.RunInTerminalRequestArguments{
		Args: []string{"prog"},
		Env:  map[string]interface{}{"DAPCTL_REMOVE_ME": nil, "NEW": "1"},
	}, "/w")
	require.NoError(t, err)
	assert.Equal(t, "/w", cmd.Dir)
	assert.NotContains(t, cmd.Env, "DAPCTL_REMOVE_ME=x")
	assert.Contains(t, cmd.Env, "NEW=1")

	_, err = terminalCommand(dap.RunInTerminalRequestArguments{}, "/w")
	assert.Error(t, err)
}
