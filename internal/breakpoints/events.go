package breakpoints

import (
	"encoding/json"

	internaldap "github.com/ctagard/dapctl/internal/dap"
)

// breakpointEvent mirrors the breakpoint event body. The source is optional
// on "changed" and "removed".
type breakpointEvent struct {
	Reason     string `json:"reason"`
	Breakpoint struct {
		ID       int  `json:"id"`
		Verified bool `json:"verified"`
		Line     int  `json:"line"`
		Source   *struct {
			Path string `json:"path"`
		} `json:"source"`
	} `json:"breakpoint"`
}

// OnBreakpointEvent merges an unsolicited breakpoint event from connID.
// "new" is matched by location, "changed" and "removed" by the id the
// adapter assigned. Anything unmatched is logged and ignored.
func (s *Store) OnBreakpointEvent(connID string, raw json.RawMessage) {
	var ev breakpointEvent
	if err := internaldap.DecodeBody(raw, &ev); err != nil {
		s.log.Warnf("malformed breakpoint event: %v", err)
		return
	}
	server := &ServerState{
		Verified: ev.Breakpoint.Verified,
		Line:     ev.Breakpoint.Line,
		ID:       ev.Breakpoint.ID,
	}

	switch ev.Reason {
	case "new":
		if ev.Breakpoint.Source == nil || ev.Breakpoint.Source.Path == "" || ev.Breakpoint.Line <= 0 {
			s.log.Debugf("ignoring new breakpoint %d without a location", ev.Breakpoint.ID)
			return
		}
		file := normalize(ev.Breakpoint.Source.Path)
		bp, _ := s.findLine(file, ev.Breakpoint.Line)
		if bp == nil {
			bp = s.putLine(file, ev.Breakpoint.Line, nil)
			bp.fromAdapter = true
		}
		bp.Server[connID] = server

	case "changed":
		if !s.updateByID(connID, server) {
			s.log.Warnf("changed event for unknown breakpoint %d", ev.Breakpoint.ID)
			return
		}

	case "removed":
		if !s.removeByID(connID, ev.Breakpoint.ID) {
			s.log.Warnf("removed event for unknown breakpoint %d", ev.Breakpoint.ID)
			return
		}

	default:
		s.log.Warnf("unrecognised breakpoint event reason %q", ev.Reason)
		return
	}
	s.notify()
}

func (s *Store) updateByID(connID string, server *ServerState) bool {
	if server.ID == 0 {
		return false
	}
	for _, file := range s.Files() {
		for _, bp := range s.fileBreakpoints(file) {
			if st, ok := bp.Server[connID]; ok && st.ID == server.ID {
				bp.Server[connID] = server
				return true
			}
		}
	}
	for _, bp := range s.functions {
		if st, ok := bp.Server[connID]; ok && st.ID == server.ID {
			bp.Server[connID] = server
			return true
		}
	}
	return false
}

// removeByID drops the adapter's state for id. Breakpoints the adapter
// created itself are deleted; the user's own survive unverified.
func (s *Store) removeByID(connID string, id int) bool {
	if id == 0 {
		return false
	}
	for _, file := range s.Files() {
		for _, bp := range s.fileBreakpoints(file) {
			if st, ok := bp.Server[connID]; ok && st.ID == id {
				delete(bp.Server, connID)
				if bp.fromAdapter {
					s.deleteLine(bp)
				}
				return true
			}
		}
	}
	for _, bp := range s.functions {
		if st, ok := bp.Server[connID]; ok && st.ID == id {
			delete(bp.Server, connID)
			return true
		}
	}
	return false
}
