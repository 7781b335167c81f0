package launchconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/prompt"
)

func project(configs map[string]Object) *Project {
	return &Project{Adapters: map[string]Object{}, Configurations: configs}
}

// TestSelectConfiguration_None verifies an empty project reports NO_CONFIGURATION.
func TestSelectConfiguration_None(t *testing.T) {
	_, err := SelectConfiguration(project(nil), nil, nil)
	assert.True(t, errors.HasCode(err, errors.CodeNoConfiguration))
}

// TestSelectConfiguration_Named verifies the configuration launch variable wins.
func TestSelectConfiguration_Named(t *testing.T) {
	p := project(map[string]Object{"a": {}, "b": {}})

	name, err := SelectConfiguration(p, map[string]string{"configuration": "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", name)

	_, err = SelectConfiguration(p, map[string]string{"configuration": "zzz"}, nil)
	assert.True(t, errors.HasCode(err, errors.CodeConfigurationNotFound))
}

// TestSelectConfiguration_Autoselect verifies single and default configurations are chosen without asking.
func TestSelectConfiguration_Autoselect(t *testing.T) {
	name, err := SelectConfiguration(project(map[string]Object{"only": {}}), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "only", name)

	p := project(map[string]Object{"a": {}, "b": {"default": true}})
	name, err = SelectConfiguration(p, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
}

// TestSelectConfiguration_Asks verifies ambiguity is resolved by the prompter.
func TestSelectConfiguration_Asks(t *testing.T) {
	p := project(map[string]Object{
		"a": {"default": true},
		"b": {"default": true},
		"c": {"autoselect": false},
	})

	_, err := SelectConfiguration(p, nil, nil)
	assert.True(t, errors.HasCode(err, errors.CodeConfigurationAmbiguous))

	pr := prompt.NewScripted("2")
	name, err := SelectConfiguration(p, nil, pr)
	require.NoError(t, err)
	assert.Equal(t, "b", name)
	assert.Equal(t, []string{"Which launch configuration?"}, pr.Questions())

	_, err = SelectConfiguration(p, nil, prompt.NewScripted(prompt.Cancel))
	assert.True(t, errors.HasCode(err, errors.CodeConfigurationAmbiguous))

	// an only configuration that opts out of autoselect is still asked about
	pr = prompt.NewScripted("c")
	name, err = SelectConfiguration(project(map[string]Object{"c": {"autoselect": false}}), nil, pr)
	require.NoError(t, err)
	assert.Equal(t, "c", name)
	assert.Len(t, pr.Questions(), 1)
}

// TestResolveAdapter_Extends verifies extends chains merge recursively.
func TestResolveAdapter_Extends(t *testing.T) {
	adapters := map[string]Object{
		"base": {
			"command":       []interface{}{"dlv", "dap"},
			"configuration": map[string]interface{}{"mode": "debug", "stopOnEntry": false},
		},
		"mid": {
			"extends":       "base",
			"configuration": map[string]interface{}{"mode": "test"},
		},
	}

	adapter, name, err := ResolveAdapter(Object{"adapter": "mid"}, adapters)
	require.NoError(t, err)
	assert.Equal(t, "mid", name)
	assert.NotContains(t, adapter, "extends")
	assert.Equal(t, []interface{}{"dlv", "dap"}, adapter["command"])
	assert.Equal(t, map[string]interface{}{"mode": "test", "stopOnEntry": false}, adapter["configuration"])

	inline, name, err := ResolveAdapter(Object{"adapter": map[string]interface{}{"extends": "base", "port": 4711}}, adapters)
	require.NoError(t, err)
	assert.Equal(t, "base", name)
	assert.Equal(t, 4711, inline["port"])
	assert.Contains(t, inline, "command")

	// resolving never mutates the registry
	assert.Equal(t, "base", adapters["mid"]["extends"])
}

// TestResolveAdapter_Errors verifies unknown and circular references fail.
func TestResolveAdapter_Errors(t *testing.T) {
	adapters := map[string]Object{
		"a":      {"extends": "b"},
		"b":      {"extends": "a"},
		"orphan": {"extends": "missing"},
	}

	_, _, err := ResolveAdapter(Object{"adapter": "a"}, adapters)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnresolvedAdapter))
	assert.Contains(t, err.Error(), "circular extends chain: a -> b -> a")

	_, _, err = ResolveAdapter(Object{"adapter": "orphan"}, adapters)
	assert.True(t, errors.HasCode(err, errors.CodeUnresolvedAdapter))

	_, _, err = ResolveAdapter(Object{"adapter": "nope"}, adapters)
	assert.True(t, errors.HasCode(err, errors.CodeUnresolvedAdapter))

	_, _, err = ResolveAdapter(Object{}, adapters)
	assert.True(t, errors.HasCode(err, errors.CodeUnresolvedAdapter))
}

// TestLaunchConfig verifies adapter defaults are overlaid by the configuration.
func TestLaunchConfig(t *testing.T) {
	adapter := Object{"configuration": map[string]interface{}{"mode": "debug", "name": "ignored"}}
	configuration := Object{"configuration": map[string]interface{}{"program": "/x"}}

	cfg := LaunchConfig("run", adapter, configuration)
	assert.Equal(t, Object{"mode": "debug", "program": "/x", "request": "launch", "name": "run"}, cfg)

	cfg = LaunchConfig("attach", nil, Object{"configuration": map[string]interface{}{"request": "attach"}})
	assert.Equal(t, "attach", cfg["request"])
}

// TestExceptionAnswers verifies the breakpoints.exception block is returned.
func TestExceptionAnswers(t *testing.T) {
	c := Object{"breakpoints": map[string]interface{}{"exception": map[string]interface{}{"raised": "N"}}}
	assert.Equal(t, map[string]interface{}{"raised": "N"}, ExceptionAnswers(c))
	assert.Nil(t, ExceptionAnswers(Object{}))
}
