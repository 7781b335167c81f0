// Package launchconfig finds, selects and expands debug configurations.
//
// A project describes how to debug it in a .dapctl.json file:
//
//	{
//	  "adapters": { "<name>": { "command": [...], "extends": "<base>", ... } },
//	  "configurations": {
//	    "<name>": {
//	      "adapter": "<name>" | { ...inline adapter... },
//	      "default": true, "autoselect": true,
//	      "variables": { ... },
//	      "breakpoints": { "exception": { "<filter>": "Y" } },
//	      "configuration": { "request": "launch", "program": "${file}" }
//	    }
//	  }
//	}
//
// Adapters may also come from gadget files and from the built-in adapter
// specs. Values are expanded with ${name} references before use.
package launchconfig

import (
	"encoding/json"
	"sort"

	"github.com/ctagard/dapctl/pkg/types"
)

// Object is a decoded JSON object. Configurations and adapters are kept
// untyped because their contents are adapter-specific and pass through to
// the adapter after expansion.
type Object = map[string]interface{}

// Database is the content of one configuration or gadget file.
type Database struct {
	Adapters       map[string]Object `json:"adapters,omitempty"`
	Configurations map[string]Object `json:"configurations,omitempty"`
}

// Project is everything loaded for a start attempt.
type Project struct {
	// ConfigFile is the most specific configuration file found, or "".
	ConfigFile     string
	Adapters       map[string]Object
	Configurations map[string]Object
}

// ConfigurationNames returns the sorted configuration names.
func (p *Project) ConfigurationNames() []string {
	names := make([]string, 0, len(p.Configurations))
	for name := range p.Configurations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries lists every configuration, sorted by name.
func (p *Project) Summaries() []types.ConfigurationInfo {
	out := make([]types.ConfigurationInfo, 0, len(p.Configurations))
	for _, name := range p.ConfigurationNames() {
		c := p.Configurations[name]
		s := types.ConfigurationInfo{
			Name:       name,
			Default:    isDefault(c),
			Autoselect: autoselect(c),
		}
		if a, ok := c["adapter"].(string); ok {
			s.Adapter = a
		}
		out = append(out, s)
	}
	return out
}

func isDefault(c Object) bool {
	v, ok := c["default"].(bool)
	return ok && v
}

// autoselect is true unless explicitly false.
func autoselect(c Object) bool {
	v, ok := c["autoselect"].(bool)
	return !ok || v
}

// DeepCopy returns an independent copy of obj so expansion never mutates
// loaded configuration.
func DeepCopy(obj Object) Object {
	if obj == nil {
		return nil
	}
	return copyValue(obj).(Object)
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, v := range t {
			out[k] = copyValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = copyValue(v)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, v := range t {
			out[i] = v
		}
		return out
	}
	return v
}

// Merge overlays top onto base recursively: nested objects merge, anything
// else in top replaces base. Neither argument is modified.
func Merge(base, top Object) Object {
	out := DeepCopy(base)
	if out == nil {
		out = Object{}
	}
	for k, v := range top {
		if sub, ok := v.(map[string]interface{}); ok {
			if existing, ok := out[k].(map[string]interface{}); ok {
				out[k] = Merge(existing, sub)
				continue
			}
		}
		out[k] = copyValue(v)
	}
	return out
}

// FromStruct converts a typed value to an Object through its JSON form.
func FromStruct(v interface{}) (Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}
