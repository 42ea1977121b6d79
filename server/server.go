package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/melkeydev/db-export/config"
	"github.com/melkeydev/db-export/export"
	"github.com/melkeydev/db-export/metrics"
	"github.com/melkeydev/db-export/session"
)

// Server is the HTTP surface over one session manager.
type Server struct {
	cfg        *config.Config
	sessions   *session.Manager
	exporter   *export.Exporter
	metrics    *metrics.Collector
	logger     *slog.Logger
	httpServer *http.Server

	mu           sync.Mutex
	running      bool
	shutdownOnce sync.Once
}

func NewServer(cfg *config.Config, sessions *session.Manager, exporter *export.Exporter, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		exporter: exporter,
		metrics:  collector,
		logger:   logger,
	}
}

// Handler returns the routed handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("GET /api/tables", s.handleTables)
	mux.HandleFunc("GET /api/schemas", s.handleSchemas)
	mux.HandleFunc("POST /api/export", s.handleExport)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = corsMiddleware(corsOptions{
		Enabled:        s.cfg.Server.CORS.Enabled,
		AllowedOrigins: s.cfg.Server.CORS.AllowedOrigins,
	})(handler)
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(s.logger)(handler)
	handler = recoveryMiddleware(s.logger)(handler)
	return handler
}

// Start serves until ctx is cancelled, a termination signal arrives or
// the listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting export server",
			"address", s.cfg.Server.ListenAddress,
			"environment", s.cfg.Environment,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		s.sessions.Shutdown()
		return err
	}
	return s.Shutdown(context.Background())
}

// Shutdown drains in-flight requests and closes every database handle.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}
		s.sessions.Shutdown()

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()

		s.logger.Info("export server stopped")
	})

	return shutdownErr
}
