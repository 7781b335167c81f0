// Package cmds implements the dapctl command tree.
package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctagard/dapctl/internal/adapters"
	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/launchconfig"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/mcp"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/internal/session"
	"github.com/ctagard/dapctl/internal/version"
)

var (
	// configPath is the tool configuration file.
	configPath string
	// mode overrides the capability mode of the configuration.
	mode string
	// logLevel overrides the configured log level.
	logLevel string
	// logFile overrides the configured log destination.
	logFile string

	// currentFile anchors the project file search.
	currentFile string
	// projectFile names the project file instead of searching for it.
	projectFile string
	// launchVars are variable values given on the command line.
	launchVars map[string]string

	// checkUpdates makes the version command query the latest release.
	checkUpdates bool
)

const dapctlLongDesc = `dapctl drives debug adapters through the Debug Adapter Protocol.

Debug configurations are read from a .dapctl.json project file, found by
searching upward from the current file, merged with the configurations in the
gadget directory. Sessions can be driven interactively with 'dapctl run' or
exposed to an MCP client with 'dapctl serve'.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:           "dapctl",
		Short:         "dapctl is a Debug Adapter Protocol client.",
		Long:          dapctlLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCommand.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the tool configuration file (JSON or YAML).")
	rootCommand.PersistentFlags().StringVar(&mode, "mode", "", `Capability mode: "readonly" or "full".`)
	rootCommand.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error.")
	rootCommand.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr.")

	// 'serve' subcommand.
	serveCommand := &cobra.Command{
		Use:   "serve",
		Short: "Serve debugging tools to an MCP client over stdio.",
		Long: `Starts an MCP server on stdin and stdout. Add it to an MCP client as:

    {"mcpServers": {"dapctl": {"command": "dapctl", "args": ["serve"]}}}`,
		Args: cobra.NoArgs,
		RunE: serveCmd,
	}
	rootCommand.AddCommand(serveCommand)

	// 'run' subcommand.
	runCommand := &cobra.Command{
		Use:   "run [configuration]",
		Short: "Debug interactively.",
		Long: `Opens a command prompt driving a debug session. When a configuration is
named it is started at once; otherwise use 'start'. Type 'help' at the prompt
for the list of commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCmd,
	}
	addProjectFlags(runCommand)
	runCommand.Flags().StringToStringVar(&launchVars, "var", nil, "Value of a configuration variable, as name=value. May be repeated.")
	rootCommand.AddCommand(runCommand)

	// 'configs' subcommand.
	configsCommand := &cobra.Command{
		Use:   "configs",
		Short: "List the debug configurations of a project.",
		Long:  "Lists the configurations available to 'run'. The default configuration is marked with *.",
		Args:  cobra.NoArgs,
		RunE:  configsCmd,
	}
	addProjectFlags(configsCommand)
	rootCommand.AddCommand(configsCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		RunE:  versionCmd,
	}
	versionCommand.Flags().BoolVar(&checkUpdates, "check", false, "Check whether a newer release is available.")
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&currentFile, "file", "f", "", "The file being debugged; the project file is searched upward from it.")
	cmd.Flags().StringVarP(&projectFile, "project", "p", "", "Path of the project configuration file.")
}

// loadConfig reads the tool configuration and applies the global flags.
func loadConfig(defaultLevel string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	switch mode {
	case "":
	case string(config.ModeReadOnly), string(config.ModeFull):
		cfg.Mode = config.CapabilityMode(mode)
	default:
		return nil, fmt.Errorf("invalid mode %q", mode)
	}

	level := cfg.LogLevel
	if defaultLevel != "" && (level == "" || level == "info") {
		level = defaultLevel
	}
	if logLevel != "" {
		level = logLevel
	}
	dest := cfg.LogFile
	if logFile != "" {
		dest = logFile
	}
	if err := logflags.Setup(level, dest); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	defer logflags.Close()
	log := logflags.MCPLogger()

	server := mcp.NewServer(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		server.Close()
		os.Exit(0)
	}()

	log.Infof("dapctl %s serving MCP on stdio (mode %s)", version.Version, cfg.Mode)
	err = server.ServeStdio()
	server.Close()
	return err
}

func runCmd(cmd *cobra.Command, args []string) error {
	if !prompt.Interactive() {
		return fmt.Errorf("run needs a terminal; use 'dapctl serve' for tool access")
	}
	// the prompt shares the terminal with the logs
	cfg, err := loadConfig("warn")
	if err != nil {
		return err
	}
	defer logflags.Close()

	term := prompt.NewTerminal()
	defer term.Close()

	m := session.NewManager(session.Options{
		Config:   cfg,
		Prompter: term,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		closeCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		m.Close(closeCtx)
	}()

	r := newREPL(m, cmd.OutOrStdout())
	r.currentFile = currentFile
	r.configFile = projectFile

	if len(args) > 0 || len(launchVars) > 0 {
		startArgs := make([]string, 0, len(launchVars)+1)
		startArgs = append(startArgs, args...)
		for k, v := range launchVars {
			startArgs = append(startArgs, k+"="+v)
		}
		if err := r.start(startArgs); err != nil {
			fmt.Fprintf(r.out, "Command failed: %v\n", err)
		}
	}
	r.run(ctx, term)
	return nil
}

func configsCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig("warn")
	if err != nil {
		return err
	}
	defer logflags.Close()

	project, err := launchconfig.Load(launchconfig.LoadOptions{
		CurrentFile: currentFile,
		ConfigFile:  projectFile,
		GadgetDir:   cfg.GadgetDir,
		Builtin:     adapters.Builtin(cfg.Adapters),
	})
	if err != nil {
		return err
	}
	if project.ConfigFile != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Project file: %s\n", project.ConfigFile)
	}
	printConfigurations(cmd.OutOrStdout(), project)
	return nil
}

func versionCmd(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "dapctl version %s\n", version.Version)
	if !checkUpdates {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	release, err := (&version.Checker{}).Latest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), release)
	return nil
}
