package cmds

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ctagard/dapctl/internal/breakpoints"
	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/internal/session"
	"github.com/ctagard/dapctl/pkg/types"
)

type cmdfunc func(r *repl, args []string) error

type command struct {
	aliases []string
	usage   string
	helpMsg string
	fn      cmdfunc
}

func (c command) match(name string) bool {
	for _, a := range c.aliases {
		if a == name {
			return true
		}
	}
	return false
}

// repl drives the active root session from typed commands.
type repl struct {
	m    *session.Manager
	out  io.Writer
	cmds []command

	currentFile string
	configFile  string
	exit        bool
}

func newREPL(m *session.Manager, out io.Writer) *repl {
	r := &repl{m: m, out: out}
	r.cmds = []command{
		{aliases: []string{"help", "h"}, helpMsg: "Prints the help message.", fn: (*repl).help},
		{aliases: []string{"start"}, usage: "start [configuration] [name=value ...]", helpMsg: "Starts the active session, restarting it when it is running.", fn: (*repl).start},
		{aliases: []string{"restart", "r"}, helpMsg: "Restarts with the last configuration.", fn: (*repl).restart},
		{aliases: []string{"stop"}, helpMsg: "Disconnects the active session and its children.", fn: (*repl).stop},
		{aliases: []string{"reset"}, helpMsg: "Stops and forgets the configuration and output.", fn: (*repl).reset},
		{aliases: []string{"break", "b"}, usage: "break <file>:<line> [condition]", helpMsg: "Toggles a line breakpoint: add, disable, remove.", fn: (*repl).toggleBreakpoint},
		{aliases: []string{"fbreak"}, usage: "fbreak <function>", helpMsg: "Toggles a function breakpoint.", fn: (*repl).functionBreakpoint},
		{aliases: []string{"clear"}, usage: "clear <file>:<line>", helpMsg: "Removes a line breakpoint.", fn: (*repl).clearBreakpoint},
		{aliases: []string{"clearall"}, helpMsg: "Removes every breakpoint.", fn: (*repl).clearAll},
		{aliases: []string{"breakpoints", "bp"}, helpMsg: "Lists breakpoints.", fn: (*repl).listBreakpoints},
		{aliases: []string{"save"}, usage: "save [file]", helpMsg: "Saves breakpoints.", fn: (*repl).saveBreakpoints},
		{aliases: []string{"load"}, usage: "load [file]", helpMsg: "Loads saved breakpoints.", fn: (*repl).loadBreakpoints},
		{aliases: []string{"continue", "c"}, helpMsg: "Resumes the current thread.", fn: control((*session.Session).Continue)},
		{aliases: []string{"pause"}, helpMsg: "Pauses the current thread.", fn: control((*session.Session).Pause)},
		{aliases: []string{"next", "n"}, helpMsg: "Steps over the current line.", fn: control((*session.Session).StepOver)},
		{aliases: []string{"step", "s"}, helpMsg: "Steps into the call on the current line.", fn: control((*session.Session).StepInto)},
		{aliases: []string{"stepout", "so"}, helpMsg: "Runs until the current function returns.", fn: control((*session.Session).StepOut)},
		{aliases: []string{"runto"}, usage: "runto <file>:<line>", helpMsg: "Runs the current thread to a line.", fn: (*repl).runTo},
		{aliases: []string{"threads"}, helpMsg: "Lists threads; the current one is marked with *.", fn: (*repl).threads},
		{aliases: []string{"thread", "tr"}, usage: "thread <id>", helpMsg: "Makes a thread current.", fn: (*repl).thread},
		{aliases: []string{"toggle"}, usage: "toggle <id>", helpMsg: "Pauses a running thread or continues a paused one.", fn: (*repl).toggleThread},
		{aliases: []string{"frame"}, usage: "frame <id>", helpMsg: "Makes a frame of the current thread current.", fn: (*repl).frame},
		{aliases: []string{"output", "o"}, helpMsg: "Prints recent output.", fn: (*repl).output},
		{aliases: []string{"sessions"}, helpMsg: "Lists sessions; the active one is marked with *.", fn: (*repl).sessions},
		{aliases: []string{"session"}, usage: "session <id>", helpMsg: "Makes a session active.", fn: (*repl).selectSession},
		{aliases: []string{"new"}, usage: "new [name]", helpMsg: "Creates a root session and makes it active.", fn: (*repl).newSession},
		{aliases: []string{"rename"}, usage: "rename <name>", helpMsg: "Renames the active session.", fn: (*repl).rename},
		{aliases: []string{"destroy"}, usage: "destroy <id>", helpMsg: "Removes a root session that is not connected.", fn: (*repl).destroy},
		{aliases: []string{"configs"}, helpMsg: "Lists the configurations of the project.", fn: (*repl).configs},
		{aliases: []string{"exit", "quit", "q"}, helpMsg: "Stops every session and exits.", fn: (*repl).quit},
	}
	return r
}

// words are the completion candidates for the command prompt.
func (r *repl) words() []string {
	var out []string
	for _, c := range r.cmds {
		out = append(out, c.aliases...)
	}
	return out
}

// exec runs one command line.
func (r *repl) exec(line string) error {
	args, err := launchconfig.SplitWords(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	for _, c := range r.cmds {
		if c.match(args[0]) {
			return c.fn(r, args[1:])
		}
	}
	return fmt.Errorf("command not available: %s", args[0])
}

// run reads commands until exit or end of input.
func (r *repl) run(ctx context.Context, term *prompt.Terminal) {
	term.SetCompleter(r.words())
	go r.watch(ctx)
	for !r.exit {
		line, err := term.Prompt("(dapctl) ")
		if err != nil {
			return
		}
		if err := r.exec(line); err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
		}
	}
}

// watch prints where the active session stopped whenever it pauses.
func (r *repl) watch(ctx context.Context) {
	var last types.SessionState
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.m.Updates():
		}
		var snap *types.Snapshot
		err := r.m.Do(func() {
			if s := r.m.Active(); s != nil {
				sn := s.Snapshot()
				snap = &sn
			}
		})
		if err != nil {
			return
		}
		if snap == nil || snap.Session.State == last {
			continue
		}
		last = snap.Session.State
		if last == types.SessionStatePaused && snap.CurrentFrame != nil {
			fmt.Fprintf(r.out, "> %s\n", frameLine(*snap.CurrentFrame))
		}
	}
}

// active returns the active session, creating one when there is none.
func (r *repl) active() (*session.Session, error) {
	if s := r.m.Active(); s != nil {
		return s, nil
	}
	return r.m.NewSession("")
}

// do runs fn against the active session on the manager's executor.
func (r *repl) do(fn func(s *session.Session) error) error {
	s, err := r.active()
	if err != nil {
		return err
	}
	var opErr error
	if err := r.m.Do(func() { opErr = fn(s) }); err != nil {
		return err
	}
	return opErr
}

func control(op func(*session.Session) error) cmdfunc {
	return func(r *repl, _ []string) error {
		return r.do(op)
	}
}

func (r *repl) help(args []string) error {
	fmt.Fprintln(r.out, "The following commands are available:")
	for _, c := range r.cmds {
		name := c.aliases[0]
		if len(c.aliases) > 1 {
			name += " (alias: " + strings.Join(c.aliases[1:], " | ") + ")"
		}
		fmt.Fprintf(r.out, "    %-28s %s\n", name, c.helpMsg)
		if c.usage != "" {
			fmt.Fprintf(r.out, "    %-28s usage: %s\n", "", c.usage)
		}
	}
	return nil
}

func (r *repl) start(args []string) error {
	vars := make(map[string]string)
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			vars[k] = v
			continue
		}
		vars[launchconfig.ConfigurationVariable] = a
	}
	return r.do(func(s *session.Session) error {
		return s.Start(context.Background(), session.StartOptions{
			CurrentFile:     r.currentFile,
			ConfigFile:      r.configFile,
			LaunchVariables: vars,
		})
	})
}

func (r *repl) restart(args []string) error {
	return r.do(func(s *session.Session) error {
		return s.Restart(context.Background())
	})
}

func (r *repl) stop(args []string) error {
	return r.do((*session.Session).Stop)
}

func (r *repl) reset(args []string) error {
	return r.do(func(s *session.Session) error {
		s.Reset()
		return nil
	})
}

// parseLocation splits file:line.
func parseLocation(arg string) (string, int, error) {
	i := strings.LastIndex(arg, ":")
	if i <= 0 {
		return "", 0, errors.InvalidParameter("location", arg, "file:line")
	}
	line, err := strconv.Atoi(arg[i+1:])
	if err != nil || line <= 0 {
		return "", 0, errors.InvalidParameter("location", arg, "file:line with a line number starting at 1")
	}
	return arg[:i], line, nil
}

func (r *repl) toggleBreakpoint(args []string) error {
	if len(args) == 0 {
		return errors.MissingParameter("location", "break <file>:<line> [condition]")
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	opts := breakpoints.Options{}
	if len(args) > 1 {
		opts["condition"] = strings.Join(args[1:], " ")
	}
	return r.do(func(s *session.Session) error {
		s.Breakpoints().ToggleBreakpoint(file, line, opts, false)
		return nil
	})
}

func (r *repl) functionBreakpoint(args []string) error {
	if len(args) != 1 {
		return errors.MissingParameter("function", "fbreak <function>")
	}
	return r.do(func(s *session.Session) error {
		s.Breakpoints().ToggleFunctionBreakpoint(args[0], breakpoints.Options{})
		return nil
	})
}

func (r *repl) clearBreakpoint(args []string) error {
	if len(args) != 1 {
		return errors.MissingParameter("location", "clear <file>:<line>")
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error {
		s.Breakpoints().ClearLineBreakpoint(file, line)
		return nil
	})
}

func (r *repl) clearAll(args []string) error {
	return r.do(func(s *session.Session) error {
		s.Breakpoints().ClearBreakpoints()
		return nil
	})
}

func (r *repl) listBreakpoints(args []string) error {
	var list []types.BreakpointInfo
	if err := r.do(func(s *session.Session) error {
		list = s.Breakpoints().BreakpointsAsList()
		return nil
	}); err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, "No breakpoints.")
		return nil
	}
	for _, bp := range list {
		fmt.Fprintln(r.out, breakpointLine(bp))
	}
	return nil
}

func breakpointLine(bp types.BreakpointInfo) string {
	var where string
	switch bp.Kind {
	case types.BreakpointKindFunction:
		where = bp.Function + "()"
	case types.BreakpointKindInstruction:
		where = bp.Address
	default:
		where = fmt.Sprintf("%s:%d", bp.File, bp.Line)
	}
	status := strings.ToLower(string(bp.State))
	if bp.Verified {
		status += ", verified"
	}
	line := fmt.Sprintf("%s [%s]", where, status)
	keys := make([]string, 0, len(bp.Options))
	for k := range bp.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, bp.Options[k])
	}
	return line
}

func (r *repl) breakpointsFile(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if f := r.m.Config().BreakpointsFile; f != "" {
		return f, nil
	}
	return "", errors.MissingParameter("file", "No default breakpoints file is configured")
}

func (r *repl) saveBreakpoints(args []string) error {
	file, err := r.breakpointsFile(args)
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error {
		return s.Breakpoints().SaveFile(file)
	})
}

func (r *repl) loadBreakpoints(args []string) error {
	file, err := r.breakpointsFile(args)
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error {
		return s.Breakpoints().LoadFile(file)
	})
}

func (r *repl) runTo(args []string) error {
	if len(args) != 1 {
		return errors.MissingParameter("location", "runto <file>:<line>")
	}
	file, line, err := parseLocation(args[0])
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error {
		return s.RunTo(file, line)
	})
}

func (r *repl) snapshot() (types.Snapshot, error) {
	var snap types.Snapshot
	err := r.do(func(s *session.Session) error {
		snap = s.Snapshot()
		return nil
	})
	return snap, err
}

func (r *repl) threads(args []string) error {
	snap, err := r.snapshot()
	if err != nil {
		return err
	}
	if len(snap.Threads) == 0 {
		fmt.Fprintln(r.out, "No threads.")
		return nil
	}
	for _, t := range snap.Threads {
		mark := " "
		if t.Current {
			mark = "*"
		}
		state := string(t.State)
		if t.StopReason != "" {
			state += ": " + t.StopReason
		}
		fmt.Fprintf(r.out, "%s Thread %d %s (%s)\n", mark, t.ID, t.Name, state)
		for _, f := range t.Frames {
			fmt.Fprintf(r.out, "      %s\n", frameLine(f))
		}
	}
	return nil
}

func frameLine(f types.StackFrame) string {
	if f.Source == nil {
		return fmt.Sprintf("%d %s", f.ID, f.Name)
	}
	path := f.Source.Path
	if path == "" {
		path = f.Source.Name
	}
	return fmt.Sprintf("%d %s at %s:%d", f.ID, f.Name, path, f.Line)
}

func intArg(args []string, name string) (int, error) {
	if len(args) != 1 {
		return 0, errors.MissingParameter(name, "Expected a single number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, errors.InvalidParameter(name, args[0], "a number")
	}
	return n, nil
}

func (r *repl) thread(args []string) error {
	id, err := intArg(args, "threadId")
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error { return s.SetCurrentThread(id) })
}

func (r *repl) toggleThread(args []string) error {
	id, err := intArg(args, "threadId")
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error { return s.PauseContinueThread(id) })
}

func (r *repl) frame(args []string) error {
	id, err := intArg(args, "frameId")
	if err != nil {
		return err
	}
	return r.do(func(s *session.Session) error { return s.SetCurrentFrame(id) })
}

func (r *repl) output(args []string) error {
	snap, err := r.snapshot()
	if err != nil {
		return err
	}
	for _, l := range snap.Output {
		fmt.Fprint(r.out, l.Output)
		if !strings.HasSuffix(l.Output, "\n") {
			fmt.Fprintln(r.out)
		}
	}
	return nil
}

func (r *repl) sessions(args []string) error {
	var infos []types.SessionInfo
	if err := r.m.Do(func() {
		for _, s := range r.m.Sessions() {
			infos = append(infos, s.Info())
		}
	}); err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(r.out, "No sessions.")
		return nil
	}
	active := r.m.Active()
	for _, info := range infos {
		mark := " "
		if active != nil && active.ID() == info.ID {
			mark = "*"
		}
		indent := ""
		if info.Parent != nil {
			indent = "  "
		}
		name := info.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(r.out, "%s %s%d %s %s %s\n", mark, indent, info.ID, name, info.State, info.Configuration)
	}
	return nil
}

func (r *repl) selectSession(args []string) error {
	id, err := intArg(args, "sessionId")
	if err != nil {
		return err
	}
	return r.m.SetActive(id)
}

func (r *repl) newSession(args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	s, err := r.m.NewSession(name)
	if err != nil {
		return err
	}
	return r.m.SetActive(s.ID())
}

func (r *repl) rename(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a name")
	}
	return r.do(func(s *session.Session) error {
		s.SetName(args[0])
		return nil
	})
}

func (r *repl) destroy(args []string) error {
	id, err := intArg(args, "sessionId")
	if err != nil {
		return err
	}
	var opErr error
	if err := r.m.Do(func() { opErr = r.m.DestroyRootSession(id) }); err != nil {
		return err
	}
	return opErr
}

func (r *repl) configs(args []string) error {
	project, err := launchconfig.Load(launchconfig.LoadOptions{
		CurrentFile: r.currentFile,
		ConfigFile:  r.configFile,
		GadgetDir:   r.m.Config().GadgetDir,
		Builtin:     r.m.Builtin(),
	})
	if err != nil {
		return err
	}
	printConfigurations(r.out, project)
	return nil
}

func printConfigurations(out io.Writer, project *launchconfig.Project) {
	summaries := project.Summaries()
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No configurations.")
		return
	}
	for _, c := range summaries {
		mark := " "
		if c.Default {
			mark = "*"
		}
		fmt.Fprintf(out, "%s %s (%s)\n", mark, c.Name, c.Adapter)
	}
}

func (r *repl) quit(args []string) error {
	r.exit = true
	return nil
}
