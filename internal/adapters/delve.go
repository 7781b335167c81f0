package adapters

import (
	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

// DelveName is the built-in Go adapter.
const DelveName = "delve"

// delveSpec runs "dlv dap" listening on a free local port.
func delveSpec(cfg config.DelveConfig) launchconfig.Object {
	dlvPath := cfg.Path
	if dlvPath == "" {
		dlvPath = "dlv"
	}

	configuration := map[string]interface{}{
		"mode": "debug",
	}
	if cfg.BuildFlags != "" {
		configuration["buildFlags"] = cfg.BuildFlags
	}

	return launchconfig.Object{
		"command": []interface{}{
			dlvPath, "dap", "--listen", "127.0.0.1:${unusedLocalPort}",
		},
		"port":          "${unusedLocalPort}",
		"configuration": configuration,
	}
}
