package main

import (
	laraopsmcp "laraops/internal/mcp"

	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Long:  "Exposes task management as MCP tools over stdin/stdout for AI agents.\nLogs go to stderr; stdout carries only the protocol stream.",
		Run: func(cmd *cobra.Command, args []string) {
			a := mustApp(cmd.Context())
			defer a.close()

			srv := laraopsmcp.NewMCPServer(a.tasks, a.scheduler, a.logger)
			if err := srv.Run(); err != nil {
				fail(err)
			}
		},
	}
}
