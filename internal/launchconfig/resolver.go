package launchconfig

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/prompt"
)

// ConfigurationVariable is the launch variable that names the configuration
// to start, bypassing selection.
const ConfigurationVariable = "configuration"

// SelectConfiguration picks the configuration to start:
//  1. the one named by the "configuration" launch variable,
//  2. the only configuration, unless it opts out of autoselect,
//  3. the only one marked default that does not opt out of autoselect,
//  4. otherwise the user chooses.
func SelectConfiguration(p *Project, launchVars map[string]string, pr prompt.Prompter) (string, error) {
	names := p.ConfigurationNames()
	if len(names) == 0 {
		return "", errors.NoConfiguration([]string{ProjectFileName})
	}

	if name, ok := launchVars[ConfigurationVariable]; ok {
		if _, exists := p.Configurations[name]; !exists {
			return "", errors.ConfigurationNotFound(name, names)
		}
		return name, nil
	}

	if len(names) == 1 && autoselect(p.Configurations[names[0]]) {
		return names[0], nil
	}

	var defaults []string
	for _, name := range names {
		c := p.Configurations[name]
		if isDefault(c) && autoselect(c) {
			defaults = append(defaults, name)
		}
	}
	if len(defaults) == 1 {
		return defaults[0], nil
	}

	if pr == nil {
		return "", errors.ConfigurationAmbiguous(names)
	}
	name, err := pr.Select("Which launch configuration?", names)
	if err != nil {
		if stderrors.Is(err, prompt.ErrCancelled) {
			return "", errors.ConfigurationAmbiguous(names)
		}
		return "", err
	}
	if _, exists := p.Configurations[name]; !exists {
		return "", errors.ConfigurationNotFound(name, names)
	}
	return name, nil
}

// ResolveAdapter returns the adapter for configuration: a name looked up in
// adapters or an inline object, with its "extends" chain flattened. The
// result is a fresh copy.
func ResolveAdapter(configuration Object, adapters map[string]Object) (Object, string, error) {
	switch a := configuration["adapter"].(type) {
	case string:
		base, ok := adapters[a]
		if !ok {
			return nil, a, errors.UnresolvedAdapter(a, "no adapter with that name is defined")
		}
		resolved, err := resolveExtends(a, base, adapters, []string{a})
		return resolved, a, err
	case map[string]interface{}:
		name, _ := a["name"].(string)
		if name == "" {
			name, _ = a["extends"].(string)
		}
		if name == "" {
			name = "adapter"
		}
		resolved, err := resolveExtends(name, a, adapters, nil)
		return resolved, name, err
	case nil:
		return nil, "", errors.UnresolvedAdapter("", "the configuration does not name an adapter")
	default:
		return nil, "", errors.UnresolvedAdapter(fmt.Sprint(a), "adapter must be a name or an object")
	}
}

// resolveExtends overlays adapter onto its base, recursively. chain holds
// the names already visited.
func resolveExtends(name string, adapter Object, adapters map[string]Object, chain []string) (Object, error) {
	parent, ok := adapter["extends"]
	if !ok {
		return DeepCopy(adapter), nil
	}
	parentName, ok := parent.(string)
	if !ok || parentName == "" {
		return nil, errors.UnresolvedAdapter(name, "extends must name an adapter")
	}
	for _, seen := range chain {
		if seen == parentName {
			return nil, errors.UnresolvedAdapter(name,
				fmt.Sprintf("circular extends chain: %s -> %s", strings.Join(chain, " -> "), parentName))
		}
	}
	base, ok := adapters[parentName]
	if !ok {
		return nil, errors.UnresolvedAdapter(name, fmt.Sprintf("extends unknown adapter %q", parentName))
	}
	resolvedBase, err := resolveExtends(parentName, base, adapters, append(chain, parentName))
	if err != nil {
		return nil, err
	}
	own := DeepCopy(adapter)
	delete(own, "extends")
	return Merge(resolvedBase, own), nil
}

// LaunchConfig builds the launch/attach arguments: the adapter's
// configuration defaults overlaid by the configuration's own block. request
// defaults to "launch" and name is always the configuration name.
func LaunchConfig(name string, adapter, configuration Object) Object {
	base, _ := adapter["configuration"].(map[string]interface{})
	own, _ := configuration["configuration"].(map[string]interface{})
	cfg := Merge(base, own)
	if _, ok := cfg["request"].(string); !ok {
		cfg["request"] = "launch"
	}
	cfg["name"] = name
	return cfg
}

// ExceptionAnswers returns the configuration's breakpoints.exception block.
func ExceptionAnswers(configuration Object) map[string]interface{} {
	bp, _ := configuration["breakpoints"].(map[string]interface{})
	if bp == nil {
		return nil
	}
	ex, _ := bp["exception"].(map[string]interface{})
	return ex
}
