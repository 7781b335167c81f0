package adapters

import (
	"os"
	"path/filepath"

	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

// DebugpyName is the built-in Python adapter.
const DebugpyName = "debugpy"

// detectVenvRoot checks if pythonPath is inside a venv and returns the root directory.
// Returns empty string if not a venv or venv cannot be detected.
func detectVenvRoot(pythonPath string) string {
	// /path/to/venv/bin/python -> /path/to/venv
	venvRoot := filepath.Dir(filepath.Dir(pythonPath))

	// pyvenv.cfg is the marker created by python -m venv
	if _, err := os.Stat(filepath.Join(venvRoot, "pyvenv.cfg")); err == nil {
		return venvRoot
	}
	return ""
}

// debugpySpec runs debugpy.adapter over stdio. When the interpreter lives in
// a virtualenv the adapter runs with that environment active.
func debugpySpec(cfg config.DebugpyConfig) launchconfig.Object {
	pythonPath := cfg.PythonPath
	if pythonPath == "" {
		pythonPath = "python3"
	}

	spec := launchconfig.Object{
		"command": []interface{}{pythonPath, "-m", "debugpy.adapter"},
		"configuration": map[string]interface{}{
			"type":    "python",
			"python":  pythonPath,
			"console": "internalConsole",
		},
	}

	if venvRoot := detectVenvRoot(pythonPath); venvRoot != "" {
		binDir := filepath.Dir(pythonPath)
		spec["env"] = map[string]interface{}{
			"VIRTUAL_ENV": venvRoot,
			"PATH":        binDir + string(os.PathListSeparator) + os.Getenv("PATH"),
		}
	}
	return spec
}
