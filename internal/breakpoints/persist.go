package breakpoints

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/pretty"

	"github.com/ctagard/dapctl/pkg/types"
)

// SavedState is the persisted form of a store. Adapter state, instruction
// breakpoints and temporary breakpoints are never saved.
type SavedState struct {
	Line      map[string][]SavedLine `json:"line"`
	Function  []SavedFunction        `json:"function"`
	Exception []string               `json:"exception"`
}

// SavedLine is one persisted line breakpoint.
type SavedLine struct {
	Line    int                   `json:"line"`
	State   types.BreakpointState `json:"state"`
	Options Options               `json:"options,omitempty"`
}

// SavedFunction is one persisted function breakpoint.
type SavedFunction struct {
	Function string                `json:"function"`
	State    types.BreakpointState `json:"state"`
	Options  Options               `json:"options,omitempty"`
}

// Save returns the user's breakpoints. Exception is nil until filters have
// been negotiated.
func (s *Store) Save() SavedState {
	state := SavedState{
		Line:     make(map[string][]SavedLine),
		Function: []SavedFunction{},
	}
	for _, file := range s.Files() {
		var lines []SavedLine
		for _, bp := range s.fileBreakpoints(file) {
			if bp.Instruction != nil || bp.Options.Temporary() {
				continue
			}
			lines = append(lines, SavedLine{Line: bp.Line, State: bp.State, Options: bp.Options.clone()})
		}
		if len(lines) > 0 {
			state.Line[file] = lines
		}
	}
	for _, bp := range s.functions {
		state.Function = append(state.Function, SavedFunction{
			Function: bp.Function,
			State:    bp.State,
			Options:  bp.Options.clone(),
		})
	}
	if s.exceptions != nil {
		state.Exception = s.exceptions.Filters()
	}
	return state
}

// Load replaces every breakpoint with state and reconciles connected
// adapters. Instruction breakpoints are kept: they belong to live
// connections, not to the saved set.
func (s *Store) Load(state SavedState) {
	var instructions []*LineBreakpoint
	for _, file := range s.Files() {
		for _, bp := range s.fileBreakpoints(file) {
			if bp.Instruction != nil {
				instructions = append(instructions, bp)
			}
		}
		// keep the key so adapters receive the now empty list
		s.setFileBreakpoints(file, nil)
	}
	for _, bp := range instructions {
		s.setFileBreakpoints(bp.File, append(s.fileBreakpoints(bp.File), bp))
	}

	for file, lines := range state.Line {
		file = normalize(file)
		for _, l := range lines {
			if l.Line <= 0 {
				s.log.Warnf("skipping saved breakpoint %s:%d", file, l.Line)
				continue
			}
			if existing, _ := s.findLine(file, l.Line); existing != nil {
				continue
			}
			bp := s.putLine(file, l.Line, l.Options)
			if l.State == types.BreakpointDisabled {
				bp.State = types.BreakpointDisabled
			}
		}
	}

	s.functions = nil
	for _, f := range state.Function {
		opts := f.Options
		if opts == nil {
			opts = Options{}
		}
		bp := &FunctionBreakpoint{
			Function: f.Function,
			State:    types.BreakpointEnabled,
			Options:  opts.clone(),
			Server:   make(map[string]*ServerState),
		}
		if f.State == types.BreakpointDisabled {
			bp.State = types.BreakpointDisabled
		}
		s.functions = append(s.functions, bp)
	}

	s.exceptions = nil
	if state.Exception != nil {
		s.exceptions = NewExceptionBreakpoints(state.Exception...)
	}
	s.changed(nil)
}

// SaveFile writes the saved state to path as indented JSON.
func (s *Store) SaveFile(path string) error {
	data, err := json.Marshal(s.Save())
	if err != nil {
		return fmt.Errorf("failed to encode breakpoints: %w", err)
	}
	if err := os.WriteFile(path, pretty.Pretty(data), 0o644); err != nil {
		return fmt.Errorf("failed to write breakpoints file: %w", err)
	}
	return nil
}

// LoadFile reads a file written by SaveFile and loads it.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read breakpoints file: %w", err)
	}
	var state SavedState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse breakpoints file %s: %w", path, err)
	}
	s.Load(state)
	return nil
}
