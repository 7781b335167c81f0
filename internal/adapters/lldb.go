package adapters

import (
	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

// LLDBName is the built-in lldb-dap adapter for C, C++, Rust, Objective-C
// and Swift.
const LLDBName = "lldb-dap"

// lldbSpec runs lldb-dap over stdio. Auto REPL mode lets the debug console
// take both expressions and `-prefixed lldb commands.
func lldbSpec(cfg config.LLDBConfig) launchconfig.Object {
	path := cfg.Path
	if path == "" {
		path = "lldb-dap"
	}
	return launchconfig.Object{
		"command": []interface{}{path, "--repl-mode=auto"},
		"configuration": map[string]interface{}{
			"cwd":         "${workspaceRoot}",
			"stopOnEntry": false,
		},
	}
}
