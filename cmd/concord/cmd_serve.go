package main

import (
	"context"

	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"concord/internal/logging"
	mcpserver "concord/internal/mcp"
)

var serveFlags struct {
	file string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve concordance queries over MCP on stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the results file as
query tools (get_summary, list_categories, get_concordance, get_kappa,
reload). The server watches for parent process death and self-terminates
so disconnected clients cannot leave zombies behind.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveFlags.file, "file", "f", "results.jsonl", "Results JSONL file to serve")
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv, err := mcpserver.NewServer(serveFlags.file, version)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	mcpserver.WatchParent(ctx, cancel)

	logging.New("mcp").Info("starting concord MCP server over stdio", "file", serveFlags.file)
	return srv.MCPServer.Run(ctx, &sdkmcp.StdioTransport{})
}
