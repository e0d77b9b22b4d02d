package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"aegis-hq/firewall/pkg/audit"
	"aegis-hq/firewall/pkg/config"
	"aegis-hq/firewall/pkg/service"
	"aegis-hq/firewall/pkg/telemetry/health"
	"aegis-hq/firewall/pkg/telemetry/metrics"
	"aegis-hq/firewall/pkg/telemetry/tracing"
)

// Options are the server's dependencies. Service is required.
type Options struct {
	Service *service.Service

	// Audit backs the audit query endpoints; nil disables them.
	Audit audit.Storage

	// Verify runs a chain verification. Defaults to audit.Verify on Audit.
	Verify func(ctx context.Context) (*audit.VerifyReport, error)

	Metrics     *metrics.Collector
	MetricsPath string
	Tracer      *tracing.Tracer
	Health      *health.Checker

	Version   string
	Commit    string
	BuildTime string
}

// Server is the firewall HTTP API server.
type Server struct {
	config     config.ServerConfig
	opts       Options
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.Mutex
	isRunning bool
	addr      net.Addr
}

// New creates a server. The handler chain is built immediately so Handler
// can be used without listening.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, fmt.Errorf("server: service is required")
	}
	if opts.Verify == nil && opts.Audit != nil {
		store := opts.Audit
		opts.Verify = func(ctx context.Context) (*audit.VerifyReport, error) {
			return audit.Verify(ctx, store)
		}
	}
	if opts.Health == nil {
		opts.Health = health.New(0)
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		config: cfg,
		opts:   opts,
		logger: slog.Default().With("component", "server"),
	}
	s.handler = s.setupRoutes()
	return s, nil
}

// Handler returns the full middleware chain and router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the bound address once the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting firewall API server", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server within ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	httpServer := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Error during server shutdown", "error", err)
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("Firewall API server stopped")
	return nil
}
