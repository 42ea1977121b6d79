package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/melkeydev/db-export/config"
	"github.com/melkeydev/db-export/export"
	"github.com/melkeydev/db-export/metrics"
	"github.com/melkeydev/db-export/server"
	"github.com/melkeydev/db-export/session"
)

var serveFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP export API",
	Long: `Start the HTTP export API.

Examples:
  # Start with default config
  dbexport serve

  # Override listen address
  dbexport serve --listen 0.0.0.0:9090

  # Validate config without starting the server
  dbexport serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	for _, c := range []*cobra.Command{rootCmd, serveCmd} {
		c.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
		c.Flags().StringVar(&serveFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
		c.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the server")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveFlags.listenAddress != "" {
		cfg.Server.ListenAddress = serveFlags.listenAddress
	}
	if serveFlags.logLevel != "" {
		cfg.Logging.Level = serveFlags.logLevel
	}

	logger := newLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "configuration valid")
		return nil
	}

	collector := metrics.NewCollector(nil)
	sessions, exporter := newPipeline(cfg, collector, logger)
	connectStartup(cmd.Context(), cfg, sessions, logger)

	srv := server.NewServer(cfg, sessions, exporter, collector, logger)
	return srv.Start(contextOrBackground(cmd.Context()))
}

// newPipeline builds the session manager and the exporter that share it.
func newPipeline(cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) (*session.Manager, *export.Exporter) {
	sessions := session.NewManager(session.Options{
		ConnectTimeout: cfg.Export.ConnectTimeout,
		Metrics:        collector,
		Logger:         logger,
	})
	exporter := export.NewExporter(sessions, export.Options{
		CompressionLevel: cfg.Export.CompressionLevel,
		FlushEvery:       cfg.Export.FlushEveryRows,
		Recorder:         collector,
		Logger:           logger,
	})
	return sessions, exporter
}

// connectStartup opens the configured database, if any. A failure is
// logged and the process keeps running without a session.
func connectStartup(ctx context.Context, cfg *config.Config, sessions *session.Manager, logger *slog.Logger) {
	if cfg.Database == nil {
		return
	}
	d, err := cfg.Database.Descriptor()
	if err != nil {
		logger.Error("invalid startup database", "error", err)
		return
	}
	if err := sessions.Connect(contextOrBackground(ctx), d); err != nil {
		logger.Error("startup connection failed", "database", d, "error", err)
	}
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
