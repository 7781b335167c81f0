package adapters

import (
	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

// GDBName is the built-in adapter for GDB's native DAP support (GDB 14.1
// or later).
const GDBName = "gdb"

func gdbSpec(cfg config.GDBConfig) launchconfig.Object {
	path := cfg.Path
	if path == "" {
		path = "gdb"
	}
	return launchconfig.Object{
		"command": []interface{}{
			path,
			"--interpreter=dap",
			"--eval-command", "set print pretty on",
			// startup banners would corrupt the protocol stream
			"--quiet",
		},
		"configuration": map[string]interface{}{
			"cwd": "${workspaceRoot}",
		},
	}
}

// Builtin returns the built-in adapter specs, keyed by name, configured
// with the tool's adapter paths. js-debug specs are only present when
// jsDebugPath is set.
func Builtin(cfg config.AdapterConfigs) map[string]launchconfig.Object {
	specs := map[string]launchconfig.Object{
		DelveName:   delveSpec(cfg.Go),
		DebugpyName: debugpySpec(cfg.Python),
		LLDBName:    lldbSpec(cfg.LLDB),
		GDBName:     gdbSpec(cfg.GDB),
	}
	if cfg.Node.JsDebugPath != "" {
		specs[JSDebugName] = nodeSpec(cfg.Node)
		specs[JSDebugChromeName] = chromeSpec(cfg.Node)
	}
	return specs
}
