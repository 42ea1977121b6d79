package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/melkeydev/db-export/config"
	"github.com/melkeydev/db-export/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the export tools over MCP on stdio",
	Long: `Serve connect_database, list_tables, list_schemas and export_tables as MCP
tools on stdin/stdout. Logs go to stderr.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// stdout carries the protocol.
	logger := newLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions, exporter := newPipeline(cfg, nil, logger)
	defer sessions.Shutdown()
	connectStartup(ctx, cfg, sessions, logger)

	s := mcpserver.NewMCPServer(
		"db-export",
		Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithLogging(),
	)
	mcp.RegisterTools(s, sessions, exporter)

	stdio := mcpserver.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))

	logger.Info("serving MCP on stdio")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}
