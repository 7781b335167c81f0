package launchconfig

import (
	"github.com/ctagard/dapctl/internal/prompt"
)

// PrepareOptions carries the inputs of one start attempt.
type PrepareOptions struct {
	// CurrentFile is the file the user is editing; it seeds ${file}.
	CurrentFile string
	GadgetDir   string

	// LaunchVariables are caller-supplied values. The "configuration"
	// entry names the configuration to start.
	LaunchVariables map[string]string

	Choices  *prompt.Choices
	Prompter prompt.Prompter

	// CollectMissing reports every unresolved variable in one
	// StartCancelled error instead of stopping at the first.
	CollectMissing bool
}

// Resolved is a fully expanded configuration, ready to start.
type Resolved struct {
	Name          string
	AdapterName   string
	Adapter       Object
	Configuration Object
	// LaunchConfig is the argument object of the launch or attach request.
	LaunchConfig  Object
	WorkspaceRoot string
	Variables     map[string]string
}

// Request returns "launch" or "attach".
func (r *Resolved) Request() string {
	if req, ok := r.LaunchConfig["request"].(string); ok {
		return req
	}
	return "launch"
}

// Prepare selects, resolves and expands a configuration from p. Nothing is
// modified in p; a cancelled prompt leaves the remembered choices holding
// only the answers given before it.
func Prepare(p *Project, opts PrepareOptions) (*Resolved, error) {
	name, err := SelectConfiguration(p, opts.LaunchVariables, opts.Prompter)
	if err != nil {
		return nil, err
	}
	configuration := DeepCopy(p.Configurations[name])

	adapter, adapterName, err := ResolveAdapter(configuration, p.Adapters)
	if err != nil {
		return nil, err
	}

	root := p.WorkspaceRoot(opts.CurrentFile)
	mapping := BaseVariables(root, opts.GadgetDir, opts.CurrentFile)
	launchVars := make(map[string]string, len(opts.LaunchVariables))
	for k, v := range opts.LaunchVariables {
		if k == ConfigurationVariable {
			continue
		}
		launchVars[k] = v
		mapping[k] = v
	}

	choices := opts.Choices
	if choices == nil {
		choices = prompt.NewChoices(nil)
	}
	choices.Update(launchVars)

	exp := NewExpander(mapping, StandardCalculus(root, opts.CurrentFile), choices, opts.Prompter)
	exp.CollectMissing = opts.CollectMissing

	// adapter variables first so configuration variables can refer to them
	for _, owner := range []Object{adapter, configuration} {
		vars, err := exp.ParseVariables(owner["variables"])
		if err != nil {
			return nil, err
		}
		delete(owner, "variables")
		for k, v := range vars {
			exp.Mapping[k] = v
		}
	}

	delete(configuration, "adapter")
	if err := exp.ExpandDict(configuration); err != nil {
		return nil, err
	}
	if err := exp.ExpandDict(adapter); err != nil {
		return nil, err
	}
	if err := exp.Err(); err != nil {
		return nil, err
	}

	return &Resolved{
		Name:          name,
		AdapterName:   adapterName,
		Adapter:       adapter,
		Configuration: configuration,
		LaunchConfig:  LaunchConfig(name, adapter, configuration),
		WorkspaceRoot: root,
		Variables:     exp.Mapping,
	}, nil
}
