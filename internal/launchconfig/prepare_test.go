package launchconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dapctl/internal/errors"
	"github.com/ctagard/dapctl/internal/prompt"
)

func sampleProject(root string) *Project {
	return &Project{
		ConfigFile: filepath.Join(root, ProjectFileName),
		Adapters: map[string]Object{
			"debugpy": {
				"command":   []interface{}{"python", "-m", "debugpy.adapter"},
				"variables": map[string]interface{}{"python": "python3"},
				"configuration": map[string]interface{}{
					"python":      "${python}",
					"stopOnEntry": false,
				},
			},
		},
		Configurations: map[string]Object{
			"run": {
				"adapter":   "debugpy",
				"variables": map[string]interface{}{"entry": "${fileBasename}"},
				"configuration": map[string]interface{}{
					"program": "${workspaceRoot}/${entry}",
					"args":    []interface{}{"*${args}"},
					"cwd":     "${workdir:${workspaceRoot\\}}",
				},
			},
		},
	}
}

// TestPrepare verifies selection, variable blocks and expansion produce the launch arguments.
func TestPrepare(t *testing.T) {
	root := filepath.FromSlash("/w")
	p := sampleProject(root)
	choices := prompt.NewChoices(map[string]string{"args": "-v --fast"})
	pr := prompt.NewScripted()
	pr.UseDefaults = true

	r, err := Prepare(p, PrepareOptions{
		CurrentFile:     filepath.Join(root, "app.py"),
		LaunchVariables: map[string]string{"configuration": "run"},
		Choices:         choices,
		Prompter:        pr,
	})
	require.NoError(t, err)

	assert.Equal(t, "run", r.Name)
	assert.Equal(t, "debugpy", r.AdapterName)
	assert.Equal(t, "launch", r.Request())
	assert.Equal(t, root, r.WorkspaceRoot)
	assert.Equal(t, "python3", r.LaunchConfig["python"])
	assert.Equal(t, root+"/app.py", r.LaunchConfig["program"])
	assert.Equal(t, []interface{}{"-v", "--fast"}, r.LaunchConfig["args"])
	assert.Equal(t, root, r.LaunchConfig["cwd"])
	assert.Equal(t, "run", r.LaunchConfig["name"])

	// loaded configuration is untouched
	assert.Contains(t, p.Configurations["run"], "variables")
	assert.Equal(t, "${python}", p.Adapters["debugpy"]["configuration"].(map[string]interface{})["python"])

	assert.Len(t, pr.Questions(), 2)
	v, ok := choices.Get("workdir")
	assert.True(t, ok)
	assert.Equal(t, root, v)
	_, ok = choices.Get("configuration")
	assert.False(t, ok)
}

// TestPrepare_LaunchVariablesSkipPrompts verifies caller-supplied values are used as-is.
func TestPrepare_LaunchVariablesSkipPrompts(t *testing.T) {
	pr := prompt.NewScripted()
	r, err := Prepare(sampleProject("/w"), PrepareOptions{
		LaunchVariables: map[string]string{"args": "one", "workdir": "/tmp"},
		Prompter:        pr,
	})
	require.NoError(t, err)
	assert.Empty(t, pr.Questions())
	assert.Equal(t, []interface{}{"one"}, r.LaunchConfig["args"])
	assert.Equal(t, "/tmp", r.LaunchConfig["cwd"])
}

// TestPrepare_Cancelled verifies an unanswered prompt cancels the start.
func TestPrepare_Cancelled(t *testing.T) {
	_, err := Prepare(sampleProject("/w"), PrepareOptions{CollectMissing: true})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeStartCancelled))
	assert.Contains(t, err.Error(), "args")
}
