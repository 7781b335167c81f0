// Package mcp exposes dapctl sessions as Model Context Protocol tools.
//
// Session tools (always available):
//   - debug_start: resolve a configuration and start its adapter
//   - debug_stop: disconnect a session and its children
//   - debug_reset: stop a session and forget its configuration
//   - debug_list_sessions: list sessions
//   - debug_list_configs: list the configurations a project offers
//   - debug_snapshot: threads, frames, output and messages of a session
//
// Control tools (full mode only):
//   - debug_breakpoints: toggle, set, clear, list, save and load breakpoints
//   - debug_continue, debug_pause, debug_step: execution control
//   - debug_run_to_line: run to a line with a temporary breakpoint
//   - debug_select: move the current thread or frame
//
// Tools never block on the user. Variables a configuration needs are passed
// in the "variables" argument; anything still unresolved cancels the start
// and is reported by name.
package mcp

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/ctagard/dapctl/internal/config"
	"github.com/ctagard/dapctl/internal/logflags"
	"github.com/ctagard/dapctl/internal/prompt"
	"github.com/ctagard/dapctl/internal/session"
	"github.com/ctagard/dapctl/internal/version"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the MCP server and the sessions it drives.
type Server struct {
	mcpServer *server.MCPServer
	manager   *session.Manager
	prompter  *prompt.Scripted
	config    *config.Config
	log       *logrus.Entry
}

// NewServer creates a server whose sessions launch real adapters.
func NewServer(cfg *config.Config) *Server {
	return newServer(cfg, session.Options{})
}

func newServer(cfg *config.Config, opts session.Options) *Server {
	p := prompt.NewScripted()
	p.UseDefaults = true

	opts.Config = cfg
	opts.Prompter = p
	s := &Server{
		mcpServer: server.NewMCPServer(
			"dapctl",
			version.Version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		manager:  session.NewManager(opts),
		prompter: p,
		config:   cfg,
		log:      logflags.MCPLogger(),
	}
	s.registerTools()
	return s
}

// ServeStdio serves MCP over stdin and stdout until the client goes away.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close stops every session.
func (s *Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.manager.Close(ctx)
}

// Manager returns the session manager the tools drive.
func (s *Server) Manager() *session.Manager {
	return s.manager
}
