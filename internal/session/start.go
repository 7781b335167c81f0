package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ctagard/dapctl/internal/adapters"
	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/internal/threads"
	"github.com/ctagard/dapctl/pkg/types"
)

// StartOptions carries the inputs of one Start.
type StartOptions struct {
	// CurrentFile anchors the project file search and seeds ${file}.
	CurrentFile string

	// ConfigFile replaces the upward search for the project file.
	ConfigFile string

	// LaunchVariables are caller-supplied variable values. The
	// "configuration" entry names the configuration to start.
	LaunchVariables map[string]string

	// Prompter answers the prompts of this start. Defaults to the
	// manager's.
	Prompter prompt.Prompter

	// CollectMissing reports every unresolved variable at once.
	CollectMissing bool
}

// Start resolves a configuration and starts its adapter. It is only valid on
// a root session. A live connection is torn down first and the session
// restarts once it has gone.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	if s.parent != nil {
		return errors.NotRootSession(s.id)
	}
	p := opts.Prompter
	if p == nil {
		p = s.manager.prompter
	}

	if s.conn == nil {
		s.setState(types.SessionStatePreparing)
	}
	resolved, err := s.prepare(opts, p)
	if err != nil {
		if s.conn == nil {
			s.setState(types.SessionStateIdle)
		}
		return err
	}
	return s.startWithConfiguration(ctx, resolved, p)
}

// Restart starts the session again with the configuration it last started
// with, without prompting. A session that was never started is started.
func (s *Session) Restart(ctx context.Context) error {
	if s.resolved == nil {
		return s.Start(ctx, StartOptions{})
	}
	return s.startWithConfiguration(ctx, s.resolved, s.manager.prompter)
}

func (s *Session) prepare(opts StartOptions, p prompt.Prompter) (*launchconfig.Resolved, error) {
	cfg := s.manager.cfg
	project, err := launchconfig.Load(launchconfig.LoadOptions{
		CurrentFile: opts.CurrentFile,
		GadgetDir:   cfg.GadgetDir,
		ConfigFile:  opts.ConfigFile,
		Builtin:     s.manager.builtin,
	})
	if err != nil {
		return nil, err
	}
	return launchconfig.Prepare(project, launchconfig.PrepareOptions{
		CurrentFile:     opts.CurrentFile,
		GadgetDir:       cfg.GadgetDir,
		LaunchVariables: opts.LaunchVariables,
		Choices:         s.manager.choices,
		Prompter:        p,
		CollectMissing:  opts.CollectMissing,
	})
}

func (s *Session) startWithConfiguration(ctx context.Context, r *launchconfig.Resolved, p prompt.Prompter) error {
	if s.conn != nil {
		s.log.Debug("connection is live, stopping before start")
		s.stopThen(func() {
			if err := s.startWithConfiguration(context.Background(), r, p); err != nil {
				s.fail(err)
			}
		})
		return nil
	}

	s.resolved = r
	s.lastErr = ""
	s.log.Infof("starting configuration %q with adapter %q", r.Name, r.AdapterName)

	launch := launchconfig.DeepCopy(r.LaunchConfig)
	if err := prepareAttach(r.Adapter, launch, p); err != nil {
		s.setState(types.SessionStateIdle)
		return err
	}

	spec, err := adapters.ParseSpec(r.AdapterName, r.Adapter, p)
	if err != nil {
		s.setState(types.SessionStateIdle)
		if adapters.IsCancelled(err) {
			return errors.StartCancelled([]string{"port"})
		}
		return errors.AdapterLaunchFailed(r.AdapterName, err)
	}
	if spec.Cwd == "" {
		spec.Cwd = r.WorkspaceRoot
	}

	if s.parent == nil {
		s.store.SetConfiguredExceptions(launchconfig.ExceptionAnswers(r.Configuration))
	}

	s.setState(types.SessionStateAdapterStarting)
	cur := &connRef{}
	conn, err := s.manager.dial(ctx, spec, s.dispatcher(cur))
	if err != nil {
		s.setState(types.SessionStateIdle)
		launchErr := errors.AdapterLaunchFailed(r.AdapterName, err)
		s.lastErr = launchErr.Error()
		return launchErr
	}
	cur.conn = conn
	s.connectionUp(conn)
	s.initialise(conn, launch)
	return nil
}

// connRef is filled in once the dial has returned; handlers registered
// before that compare against it to drop messages from stale connections.
type connRef struct {
	conn internaldap.Connection
}

func (s *Session) connectionUp(conn internaldap.Connection) {
	s.conn = conn
	s.caps = internaldap.Capabilities{}
	s.initializeComplete = false
	s.launchComplete = false

	s.threads = threads.New(conn)
	s.threads.SetNotify(s.notify)
	s.threads.SetMessageHandler(s.message)
	s.threads.SetFrameHandler(func(frame types.StackFrame, reason string) {
		if reason != "stopped" || frame.Source == nil || frame.Source.Path == "" {
			return
		}
		s.store.ClearTemporaryBreakpoint(frame.Source.Path, frame.Line)
	})
}

// prepareAttach applies the adapter's "attach" block to an attach request:
// with "pidSelect": "ask" the process id is asked for unless the
// configuration already carries the "pidProperty" field.
func prepareAttach(adapter launchconfig.Object, launch launchconfig.Object, p prompt.Prompter) error {
	if req, _ := launch["request"].(string); req != "attach" {
		return nil
	}
	attach, _ := adapter["attach"].(map[string]interface{})
	if attach == nil {
		return nil
	}
	switch sel, _ := attach["pidSelect"].(string); sel {
	case "", "none":
		return nil
	case "ask":
		prop, _ := attach["pidProperty"].(string)
		if prop == "" {
			prop = "processId"
		}
		if _, ok := launch[prop]; ok {
			return nil
		}
		if p == nil {
			return errors.StartCancelled([]string{prop})
		}
		pid, err := p.Ask("Enter PID to attach to: ", "")
		if stderrors.Is(err, prompt.ErrCancelled) {
			return errors.StartCancelled([]string{prop})
		}
		if err != nil {
			return err
		}
		if n, err := strconv.Atoi(strings.TrimSpace(pid)); err == nil {
			launch[prop] = n
		} else {
			launch[prop] = pid
		}
		return nil
	default:
		return errors.ConfigInvalid("attach.pidSelect", fmt.Sprintf("unrecognised pidSelect %q", sel))
	}
}
