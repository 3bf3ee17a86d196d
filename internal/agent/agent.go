package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lavalink-stats/internal/api"
	"lavalink-stats/internal/config"
	"lavalink-stats/internal/stream"
	"lavalink-stats/internal/supervisor"
)

// Agent is the lavastats process: node workers plus the query surfaces.
type Agent struct {
	cfg        config.Config
	logger     *slog.Logger
	supervisor *supervisor.Supervisor
	http       *api.HTTPServer
	grpc       *api.GRPCServer
	health     *HealthStatus
}

func New(cfg config.Config, logger *slog.Logger) (*Agent, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("tls config: %w", err)
	}
	return NewWithDialer(cfg, stream.NewDialerFromConfig(cfg, tlsCfg, logger), logger)
}

// NewWithDialer builds an Agent around an explicit node transport.
func NewWithDialer(cfg config.Config, dialer stream.Dialer, logger *slog.Logger) (*Agent, error) {
	policy := supervisor.RestartPolicy{
		Enabled: cfg.Reconnect,
		Initial: cfg.ReconnectInitial,
		Max:     cfg.ReconnectMax,
	}
	sup, err := supervisor.New(cfg.Nodes, dialer, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	health := NewHealthStatus(sup.Store(), sup.Status)
	a := &Agent{
		cfg:        cfg,
		logger:     logger,
		supervisor: sup,
		health:     health,
		http:       api.NewHTTPServer(cfg.ListenAddr(), sup.Store(), health.Snapshot, cfg.ShutdownTimeout, logger),
	}
	if cfg.GRPCListenAddr != "" {
		a.grpc = api.NewGRPCServer(cfg.GRPCListenAddr, sup.Store(), cfg.ShutdownTimeout, logger)
	}
	return a, nil
}

func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting lavastats", "listen", a.cfg.ListenAddr(), "nodes", len(a.cfg.Nodes))
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- a.run(runCtx)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case runErr = <-runErrCh:
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received, starting graceful shutdown", "signal", sig.String(), "timeout", a.cfg.ShutdownTimeout)
		cancelRun()

		graceTimer := time.NewTimer(a.cfg.ShutdownTimeout)
		defer graceTimer.Stop()

		select {
		case runErr = <-runErrCh:
		case sig2 := <-sigCh:
			a.logger.Warn("second signal received, forcing immediate shutdown", "signal", sig2.String())
			runErr = context.Canceled
		case <-graceTimer.C:
			a.logger.Warn("graceful shutdown timeout reached, forcing shutdown", "timeout", a.cfg.ShutdownTimeout)
			runErr = context.DeadlineExceeded
		}
	}

	a.logFinalState()

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return runErr
	}
	a.logger.Info("lavastats stopped")
	return nil
}

func BuildLogger(cfg config.Config) *slog.Logger {
	return buildLogger(cfg, os.Stdout)
}

func buildLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	hOpts := &slog.HandlerOptions{Level: level}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, hOpts))
	}
	return slog.New(slog.NewTextHandler(w, hOpts))
}
