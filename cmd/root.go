package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dbexport",
	Short: "Export MySQL, PostgreSQL and SQLite tables as zipped CSV",
	Long: `dbexport connects to a database with user supplied credentials, lists its
tables and streams a selection of them as CSV files bundled into one ZIP archive.

It runs as an HTTP API (serve, the default) or as an MCP server over stdio (mcp).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
}
