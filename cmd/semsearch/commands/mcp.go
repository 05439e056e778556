package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"semsearch/internal/mcp"
)

// NewMCPCmd creates the mcp command.
func NewMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start an MCP server on stdio",
		Long: `Serve the collection as Model Context Protocol tools over stdio so LLM
agents can add documents and run semantic searches.

Tools: add_documents, search, count_documents.

Logs are written to stderr (or log.file); stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCP(cmd, opts)
		},
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "semsearch": {"command": "semsearch", "args": ["mcp"]}
  #   }
  # }`,
	}
}

func runMCP(cmd *cobra.Command, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewMCPServer("semsearch", versionInfo.Version)
	mcp.RegisterTools(server, a.svc, a.cfg.Search.TopK, a.log)

	a.log.Info("MCP server starting on stdio")
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}
	return nil
}
