package dap

import (
	"encoding/json"

	"github.com/google/go-dap"
)

// Capabilities is the raw capability map an adapter returns from
// initialize. It is kept untyped so capabilities newer than the go-dap
// schema (supportsInstructionBreakpoints and friends) are still visible.
type Capabilities map[string]interface{}

// DecodeCapabilities parses an initialize response body or the
// capabilities member of a capabilities event.
func DecodeCapabilities(raw json.RawMessage) (Capabilities, error) {
	caps := Capabilities{}
	if err := DecodeBody(raw, &caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// Supports reports whether the boolean capability name is set.
func (c Capabilities) Supports(name string) bool {
	v, ok := c[name].(bool)
	return ok && v
}

// Merge overlays other onto c.
func (c Capabilities) Merge(other Capabilities) {
	for k, v := range other {
		c[k] = v
	}
}

// Clone returns a shallow copy.
func (c Capabilities) Clone() Capabilities {
	out := make(Capabilities, len(c))
	out.Merge(c)
	return out
}

// ExceptionFilters returns the exception breakpoint filters the adapter
// advertises, in the adapter's order. Malformed entries are dropped.
func (c Capabilities) ExceptionFilters() []dap.ExceptionBreakpointsFilter {
	raw, ok := c["exceptionBreakpointFilters"]
	if !ok {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var filters []dap.ExceptionBreakpointsFilter
	if err := json.Unmarshal(data, &filters); err != nil {
		return nil
	}
	out := filters[:0]
	for _, f := range filters {
		if f.Filter != "" {
			out = append(out, f)
		}
	}
	return out
}
