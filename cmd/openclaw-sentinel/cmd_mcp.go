package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	sentinelmcp "github.com/ajitpratap0/openclaw-sentinel/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  list_changes    recent changes filtered by time, score and type
  get_change      one change record by id
  account_digest  the weekly executive digest
  list_alerts     delivered alert history
  run_cycle       run a monitoring cycle now
  account_status  sources, last cycle and store statistics

If the store or a collaborator is unavailable at startup the server still
starts; individual tool calls return MCP error responses.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()

			var srv *sentinelmcp.Server
			a, err := buildApp(cmd.Context(), logger)
			if err != nil {
				// Continue without dependencies; tool calls report the failure.
				logger.Error("mcp: failed to initialize; tool calls will fail", "error", err)
				srv = sentinelmcp.NewServer(nil, nil, version, logger)
			} else {
				defer a.Close()
				srv = sentinelmcp.NewServer(a.store, a.pipeline, version, logger)
			}

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: openclaw-sentinel MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
