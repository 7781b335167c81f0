package adapters

import (
	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
)

const (
	// JSDebugName is the built-in Node.js adapter.
	JSDebugName = "js-debug"
	// JSDebugChromeName is the built-in browser adapter.
	JSDebugChromeName = "js-debug-chrome"
)

// jsDebugServer runs vscode-js-debug's DAP server on a free port:
// node dapDebugServer.js <port> [host].
func jsDebugServer(cfg config.NodeConfig, configuration map[string]interface{}) launchconfig.Object {
	nodePath := cfg.NodePath
	if nodePath == "" {
		nodePath = "node"
	}
	return launchconfig.Object{
		"command":       []interface{}{nodePath, cfg.JsDebugPath, "${unusedLocalPort}", "127.0.0.1"},
		"port":          "${unusedLocalPort}",
		"configuration": configuration,
	}
}

// nodeSpec debugs Node.js programs. Source maps are on by default.
func nodeSpec(cfg config.NodeConfig) launchconfig.Object {
	return jsDebugServer(cfg, map[string]interface{}{
		"type":       "pwa-node",
		"console":    "internalConsole",
		"sourceMaps": true,
		"resolveSourceMapLocations": []interface{}{
			"${workspaceRoot}/**",
			"!**/node_modules/**",
		},
	})
}

// chromeSpec debugs browser code served from the workspace, with path
// overrides for the common bundlers.
func chromeSpec(cfg config.NodeConfig) launchconfig.Object {
	return jsDebugServer(cfg, map[string]interface{}{
		"type":       "pwa-chrome",
		"webRoot":    "${workspaceRoot}",
		"sourceMaps": true,
		"resolveSourceMapLocations": []interface{}{
			"${workspaceRoot}/**",
			"!**/node_modules/**",
		},
		"sourceMapPathOverrides": map[string]interface{}{
			// Vite serves files with their original paths
			"/*": "${workspaceRoot}/*",
			// Webpack/Create React App patterns
			"webpack:///src/*": "${workspaceRoot}/src/*",
			"webpack:///./*":   "${workspaceRoot}/*",
			"webpack:///*":     "*",
			"webpack:///./~/*": "${workspaceRoot}/node_modules/*",
		},
	})
}
