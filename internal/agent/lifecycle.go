package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

const healthLogInterval = 30 * time.Second

func (a *Agent) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.supervisor.Run(gctx)
	})
	g.Go(func() error {
		return a.http.Run(gctx)
	})
	if a.grpc != nil {
		g.Go(func() error {
			return a.grpc.Run(gctx)
		})
	}
	if a.cfg.ProbeListenAddr != "" {
		g.Go(func() error {
			return a.runProbeListener(gctx)
		})
	}
	g.Go(func() error {
		return a.runHealthLoop(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runHealthLoop logs pool health, at info level whenever the status changes.
func (a *Agent) runHealthLoop(ctx context.Context) error {
	t := time.NewTicker(healthLogInterval)
	defer t.Stop()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			h := a.health.Snapshot()
			level := slog.LevelDebug
			if h.Status != last {
				level = slog.LevelInfo
				last = h.Status
			}
			a.logger.Log(ctx, level, "node pool health", "status", h.Status, "connected", h.NodesConnected, "total", h.NodesTotal)
		}
	}
}

// logFinalState records where each worker ended up once the run is over.
func (a *Agent) logFinalState() {
	h := a.health.Snapshot()
	for _, n := range h.Nodes {
		a.logger.Debug("worker final state", "node", n.ID, "state", n.State, "restarts", n.Restarts, "frames", n.Frames)
	}
}
