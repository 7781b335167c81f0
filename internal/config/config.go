// Package config provides configuration management for dapctl.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which MCP tools are available
//   - Permission flags: control launch, attach, breakpoint edits and execution
//   - Adapter settings: paths for the built-in debug adapters
//   - Logging: level and destination
//   - Limits: maximum sessions and request timeout
//
// Configuration is read from a JSON or YAML file (chosen by extension) or
// uses sensible defaults. Project debug configurations live separately in
// .dapctl.json files, see package launchconfig.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Only inspection tools
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the tool configuration
type Config struct {
	// Capability levels
	Mode         CapabilityMode `json:"mode" yaml:"mode"`
	AllowSpawn   bool           `json:"allowSpawn" yaml:"allowSpawn"`
	AllowAttach  bool           `json:"allowAttach" yaml:"allowAttach"`
	AllowModify  bool           `json:"allowModify" yaml:"allowModify"`
	AllowExecute bool           `json:"allowExecute" yaml:"allowExecute"`

	// Adapter paths for the built-in adapter specs
	Adapters AdapterConfigs `json:"adapters" yaml:"adapters"`

	// GadgetDir holds installed adapter definitions and shared configurations
	GadgetDir string `json:"gadgetDir" yaml:"gadgetDir"`

	// BreakpointsFile is where breakpoints are saved and loaded from
	BreakpointsFile string `json:"breakpointsFile" yaml:"breakpointsFile"`

	// Logging; LogFile empty means stderr
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile" yaml:"logFile"`

	// Limits for safety
	MaxSessions    int           `json:"maxSessions" yaml:"maxSessions"`
	RequestTimeout time.Duration `json:"requestTimeout" yaml:"requestTimeout"`
}

// AdapterConfigs holds configuration for each built-in adapter
type AdapterConfigs struct {
	Go     DelveConfig   `json:"go" yaml:"go"`
	Python DebugpyConfig `json:"python" yaml:"python"`
	Node   NodeConfig    `json:"node" yaml:"node"`
	LLDB   LLDBConfig    `json:"lldb" yaml:"lldb"`
	GDB    GDBConfig     `json:"gdb" yaml:"gdb"`
}

// DelveConfig holds Delve-specific configuration
type DelveConfig struct {
	Path       string `json:"path" yaml:"path"`
	BuildFlags string `json:"buildFlags" yaml:"buildFlags"`
}

// DebugpyConfig holds debugpy-specific configuration
type DebugpyConfig struct {
	PythonPath string `json:"pythonPath" yaml:"pythonPath"`
}

// NodeConfig holds Node.js-specific configuration
type NodeConfig struct {
	NodePath    string `json:"nodePath" yaml:"nodePath"`
	JsDebugPath string `json:"jsDebugPath" yaml:"jsDebugPath"` // Path to vscode-js-debug's dapDebugServer.js
}

// LLDBConfig holds LLDB-specific configuration
type LLDBConfig struct {
	Path string `json:"path" yaml:"path"` // Path to lldb-dap binary (formerly lldb-vscode)
}

// GDBConfig holds GDB-specific configuration
type GDBConfig struct {
	Path string `json:"path" yaml:"path"` // Path to gdb binary (requires GDB 14.1+ for DAP support)
}

// findLLDBDap searches for lldb-dap in common locations across platforms
func findLLDBDap() string {
	if path, err := exec.LookPath("lldb-dap"); err == nil {
		return path
	}

	locations := []string{
		// macOS - Xcode Command Line Tools and Xcode.app
		"/Library/Developer/CommandLineTools/usr/bin/lldb-dap",
		"/Applications/Xcode.app/Contents/Developer/usr/bin/lldb-dap",
		"/opt/homebrew/bin/lldb-dap",
		"/usr/local/bin/lldb-dap",

		// Linux - LLVM/Clang package installations
		"/usr/bin/lldb-dap",
		"/usr/bin/lldb-dap-18",
		"/usr/bin/lldb-dap-17",
		"/usr/lib/llvm-18/bin/lldb-dap",
		"/usr/lib/llvm-17/bin/lldb-dap",
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	// lldb-vscode is the pre-LLVM 16 name
	if path, err := exec.LookPath("lldb-vscode"); err == nil {
		return path
	}

	return "lldb-dap"
}

// DefaultGadgetDir is ~/.config/dapctl, or "" if the home directory is unknown.
func DefaultGadgetDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dapctl")
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	gadgetDir := DefaultGadgetDir()
	breakpoints := ""
	if gadgetDir != "" {
		breakpoints = filepath.Join(gadgetDir, "breakpoints.json")
	}
	return &Config{
		Mode:            ModeFull,
		AllowSpawn:      true,
		AllowAttach:     true,
		AllowModify:     true,
		AllowExecute:    true,
		MaxSessions:     10,
		RequestTimeout:  30 * time.Second,
		GadgetDir:       gadgetDir,
		BreakpointsFile: breakpoints,
		LogLevel:        "info",
		Adapters: AdapterConfigs{
			Go: DelveConfig{
				Path: "dlv",
			},
			Python: DebugpyConfig{
				PythonPath: "python3",
			},
			Node: NodeConfig{
				NodePath: "node",
			},
			LLDB: LLDBConfig{
				Path: findLLDBDap(),
			},
			GDB: GDBConfig{
				Path: "gdb",
			},
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file. Fields missing
// from the file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable interpretation.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("invalid mode %q: expected %q or %q", c.Mode, ModeReadOnly, ModeFull)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("maxSessions must be at least 1, got %d", c.MaxSessions)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must not be negative")
	}
	return nil
}

// CanUseControlTools returns true if execution control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull && c.AllowExecute
}

// CanSpawn returns true if launching debuggees is allowed
func (c *Config) CanSpawn() bool {
	return c.AllowSpawn
}

// CanAttach returns true if attaching to processes is allowed
func (c *Config) CanAttach() bool {
	return c.AllowAttach
}

// CanModifyBreakpoints returns true if breakpoint edits are allowed
func (c *Config) CanModifyBreakpoints() bool {
	return c.Mode == ModeFull && c.AllowModify
}
