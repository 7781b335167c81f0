package breakpoints

import (
	"fmt"
	"path/filepath"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/sirupsen/logrus"

	internaldap "github.com/ctagard/dapctl/internal/dap"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/pkg/types"
)

// connState is the reconciliation bookkeeping for one registered connection.
type connState struct {
	conn             internaldap.Connection
	caps             internaldap.Capabilities
	sentFiles        map[string]bool
	sentInstructions bool
}

// Store owns every user-declared breakpoint of a root session and its
// descendants. It is not safe for concurrent use: all calls happen on the
// session event loop.
type Store struct {
	// lines maps a normalized file path to []*LineBreakpoint in insertion order.
	lines      *linkedhashmap.Map
	functions  []*FunctionBreakpoint
	exceptions *ExceptionBreakpoints
	configured map[string]interface{}

	conns []*connState

	inFlight    bool
	queued      bool
	queuedDones []func()

	prompter prompt.Prompter
	choices  *prompt.Choices
	notify   func()
	log      *logrus.Entry
}

// New returns an empty store. p is used to negotiate exception filters and
// to report failures; choices remembers negotiation answers.
func New(p prompt.Prompter, choices *prompt.Choices) *Store {
	if choices == nil {
		choices = prompt.NewChoices(nil)
	}
	return &Store{
		lines:    linkedhashmap.New(),
		prompter: p,
		choices:  choices,
		notify:   func() {},
		log:      logflags.BreakpointsLogger(),
	}
}

// SetNotify installs the function called after every change that affects
// display.
func (s *Store) SetNotify(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.notify = fn
}

// SetConfiguredExceptions records per-filter answers from the launch
// configuration's breakpoints.exception block.
func (s *Store) SetConfiguredExceptions(configured map[string]interface{}) {
	s.configured = configured
}

// AddConnection registers a connection. Every subsequent round includes it.
func (s *Store) AddConnection(conn internaldap.Connection, caps internaldap.Capabilities) {
	if s.find(conn.SessionID()) != nil {
		return
	}
	if caps == nil {
		caps = internaldap.Capabilities{}
	}
	s.conns = append(s.conns, &connState{
		conn:      conn,
		caps:      caps,
		sentFiles: make(map[string]bool),
	})
}

// UpdateCapabilities merges capability changes announced by an adapter.
func (s *Store) UpdateCapabilities(connID string, caps internaldap.Capabilities) {
	if cs := s.find(connID); cs != nil {
		cs.caps.Merge(caps)
	}
}

// Connected reports whether any connection is registered.
func (s *Store) Connected() bool {
	return len(s.conns) > 0
}

func (s *Store) find(connID string) *connState {
	for _, cs := range s.conns {
		if cs.conn.SessionID() == connID {
			return cs
		}
	}
	return nil
}

func (s *Store) registered(cs *connState) bool {
	for _, c := range s.conns {
		if c == cs {
			return true
		}
	}
	return false
}

func normalize(file string) string {
	if abs, err := filepath.Abs(file); err == nil {
		return abs
	}
	return filepath.Clean(file)
}

func (s *Store) fileBreakpoints(file string) []*LineBreakpoint {
	v, ok := s.lines.Get(file)
	if !ok {
		return nil
	}
	return v.([]*LineBreakpoint)
}

func (s *Store) setFileBreakpoints(file string, bps []*LineBreakpoint) {
	s.lines.Put(file, bps)
}

// findLine returns the non-instruction breakpoint at (file, line).
func (s *Store) findLine(file string, line int) (*LineBreakpoint, int) {
	for i, bp := range s.fileBreakpoints(file) {
		if bp.Instruction == nil && bp.Line == line {
			return bp, i
		}
	}
	return nil, -1
}

func (s *Store) putLine(file string, line int, options Options) *LineBreakpoint {
	if options == nil {
		options = Options{}
	}
	bp := &LineBreakpoint{
		File:    file,
		Line:    line,
		State:   types.BreakpointEnabled,
		Options: options.clone(),
		Server:  make(map[string]*ServerState),
	}
	s.setFileBreakpoints(file, append(s.fileBreakpoints(file), bp))
	return bp
}

func (s *Store) deleteLine(bp *LineBreakpoint) {
	bps := s.fileBreakpoints(bp.File)
	for i, b := range bps {
		if b == bp {
			out := make([]*LineBreakpoint, 0, len(bps)-1)
			out = append(out, bps[:i]...)
			out = append(out, bps[i+1:]...)
			s.setFileBreakpoints(bp.File, out)
			return
		}
	}
}

func (s *Store) containsLine(bp *LineBreakpoint) bool {
	for _, b := range s.fileBreakpoints(bp.File) {
		if b == bp {
			return true
		}
	}
	return false
}

// changed notifies the presentation layer and, when connected, starts a
// reconciliation round; then runs after it (immediately when disconnected).
func (s *Store) changed(then func()) {
	s.notify()
	if s.Connected() {
		s.SendBreakpoints(then)
		return
	}
	if then != nil {
		then()
	}
}

// ToggleBreakpoint cycles the breakpoint at (file, line): absent becomes
// enabled, enabled becomes disabled, disabled is deleted. With shouldDelete
// an existing breakpoint is deleted outright.
func (s *Store) ToggleBreakpoint(file string, line int, options Options, shouldDelete bool) {
	file = normalize(file)
	bp, _ := s.findLine(file, line)
	switch {
	case bp == nil:
		s.putLine(file, line, options)
	case bp.Enabled() && !shouldDelete:
		bp.State = types.BreakpointDisabled
	default:
		s.deleteLine(bp)
	}
	s.changed(nil)
}

// SetLineBreakpoint adds an enabled breakpoint at (file, line), or replaces
// the options of the one already there. then runs once the change has been
// sent to every connection.
func (s *Store) SetLineBreakpoint(file string, line int, options Options, then func()) {
	file = normalize(file)
	if bp, _ := s.findLine(file, line); bp != nil {
		if options == nil {
			options = Options{}
		}
		bp.Options = options.clone()
		bp.State = types.BreakpointEnabled
	} else {
		s.putLine(file, line, options)
	}
	s.changed(then)
}

// ClearLineBreakpoint deletes the breakpoint at (file, line), if any.
func (s *Store) ClearLineBreakpoint(file string, line int) {
	file = normalize(file)
	bp, _ := s.findLine(file, line)
	if bp == nil {
		return
	}
	s.deleteLine(bp)
	s.changed(nil)
}

// ClearTemporaryBreakpoint deletes the breakpoint at (file, line) if it is
// temporary. Called when execution stops at that location.
func (s *Store) ClearTemporaryBreakpoint(file string, line int) {
	file = normalize(file)
	bp, _ := s.findLine(file, line)
	if bp == nil || !bp.Options.Temporary() {
		return
	}
	s.log.Debugf("consumed temporary breakpoint %s:%d", file, line)
	s.deleteLine(bp)
	s.changed(nil)
}

// ClearTemporaryBreakpoints deletes every temporary breakpoint without
// starting a round; the next change sends the result.
func (s *Store) ClearTemporaryBreakpoints() {
	for _, k := range s.lines.Keys() {
		file := k.(string)
		var keep []*LineBreakpoint
		for _, bp := range s.fileBreakpoints(file) {
			if !bp.Options.Temporary() {
				keep = append(keep, bp)
			}
		}
		s.setFileBreakpoints(file, keep)
	}
}

// ClearBreakpoints forgets every breakpoint and the negotiated exception
// filters.
func (s *Store) ClearBreakpoints() {
	files := s.lines.Keys()
	s.lines.Clear()
	// keep the file keys so connected adapters receive empty lists
	for _, k := range files {
		s.setFileBreakpoints(k.(string), nil)
	}
	s.functions = nil
	s.exceptions = nil
	s.changed(nil)
}

// AddFunctionBreakpoint adds an enabled function breakpoint.
func (s *Store) AddFunctionBreakpoint(function string, options Options) {
	if options == nil {
		options = Options{}
	}
	s.functions = append(s.functions, &FunctionBreakpoint{
		Function: function,
		State:    types.BreakpointEnabled,
		Options:  options.clone(),
		Server:   make(map[string]*ServerState),
	})
	s.changed(nil)
}

// ToggleFunctionBreakpoint cycles the function breakpoint the same way
// ToggleBreakpoint does for lines.
func (s *Store) ToggleFunctionBreakpoint(function string, options Options) {
	for i, bp := range s.functions {
		if bp.Function != function {
			continue
		}
		if bp.Enabled() {
			bp.State = types.BreakpointDisabled
		} else {
			s.functions = append(s.functions[:i:i], s.functions[i+1:]...)
		}
		s.changed(nil)
		return
	}
	s.AddFunctionBreakpoint(function, options)
}

// ToggleInstructionBreakpoint adds or deletes the instruction breakpoint at
// address, owned by the connection that resolved it. file and line locate
// it for display.
func (s *Store) ToggleInstructionBreakpoint(owner, address, file string, line int, options Options) {
	if file != "" {
		file = normalize(file)
	}
	for _, bp := range s.fileBreakpoints(file) {
		if bp.Instruction != nil && bp.Instruction.Owner == owner && bp.Instruction.Address == address {
			s.deleteLine(bp)
			s.changed(nil)
			return
		}
	}
	bp := s.putLine(file, line, options)
	bp.Instruction = &Instruction{Address: address, Owner: owner}
	s.changed(nil)
}

// LineBreakpoints returns copies of the breakpoints in file, in order.
func (s *Store) LineBreakpoints(file string) []LineBreakpoint {
	bps := s.fileBreakpoints(normalize(file))
	out := make([]LineBreakpoint, 0, len(bps))
	for _, bp := range bps {
		out = append(out, *bp)
	}
	return out
}

// Files returns every file that has, or had, line breakpoints.
func (s *Store) Files() []string {
	keys := s.lines.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.(string))
	}
	return out
}

// BreakpointAt returns a copy of the line breakpoint at (file, line).
func (s *Store) BreakpointAt(file string, line int) (LineBreakpoint, bool) {
	bp, _ := s.findLine(normalize(file), line)
	if bp == nil {
		return LineBreakpoint{}, false
	}
	return *bp, true
}

// FunctionBreakpoints returns copies of the function breakpoints.
func (s *Store) FunctionBreakpoints() []FunctionBreakpoint {
	out := make([]FunctionBreakpoint, 0, len(s.functions))
	for _, bp := range s.functions {
		out = append(out, *bp)
	}
	return out
}

// Signs returns how each breakpoint of file should be drawn.
func (s *Store) Signs(file string) []types.Sign {
	var out []types.Sign
	for _, bp := range s.fileBreakpoints(normalize(file)) {
		line := bp.Line
		if r := bp.ReportedLine(); r > 0 && bp.Enabled() {
			line = r
		}
		out = append(out, types.Sign{Line: line, Kind: signKind(bp)})
	}
	return out
}

func signKind(bp *LineBreakpoint) types.SignKind {
	switch {
	case !bp.Enabled():
		return types.SignDisabled
	case bp.Instruction != nil:
		return types.SignInstruction
	case len(bp.Server) > 0 && !bp.Verified():
		return types.SignUnverified
	case bp.Options.Condition() != "":
		return types.SignConditional
	}
	return types.SignBreakpoint
}

// BreakpointsAsList flattens every breakpoint for list views.
func (s *Store) BreakpointsAsList() []types.BreakpointInfo {
	var out []types.BreakpointInfo
	for _, file := range s.Files() {
		for _, bp := range s.fileBreakpoints(file) {
			info := types.BreakpointInfo{
				Kind:         types.BreakpointKindLine,
				File:         file,
				Line:         bp.Line,
				State:        bp.State,
				Verified:     bp.Verified(),
				ReportedLine: bp.ReportedLine(),
				Options:      bp.Options.clone(),
			}
			if bp.Instruction != nil {
				info.Kind = types.BreakpointKindInstruction
				info.Address = bp.Instruction.Address
			}
			out = append(out, info)
		}
	}
	for _, bp := range s.functions {
		out = append(out, types.BreakpointInfo{
			Kind:     types.BreakpointKindFunction,
			Function: bp.Function,
			State:    bp.State,
			Verified: anyVerified(bp.Server),
			Options:  bp.Options.clone(),
		})
	}
	if s.exceptions != nil {
		for _, f := range s.exceptions.Filters() {
			out = append(out, types.BreakpointInfo{
				Kind:     types.BreakpointKindException,
				Filter:   f,
				State:    types.BreakpointEnabled,
				Verified: true,
			})
		}
	}
	return out
}

// String summarises the store for logs.
func (s *Store) String() string {
	n := 0
	for _, file := range s.Files() {
		n += len(s.fileBreakpoints(file))
	}
	return fmt.Sprintf("%d line, %d function breakpoints, %d connections", n, len(s.functions), len(s.conns))
}
