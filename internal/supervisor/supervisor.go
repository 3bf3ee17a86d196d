package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/store"
	"lavalink-stats/internal/stream"
	"lavalink-stats/internal/worker"
)

// RestartPolicy controls what happens after a worker reaches Closed.
type RestartPolicy struct {
	Enabled bool
	Initial time.Duration
	Max     time.Duration
}

// Supervisor runs one worker per node and owns the stats store they write.
type Supervisor struct {
	logger     *slog.Logger
	store      *store.Store
	policy     RestartPolicy
	units      []*unit
	newBackoff func() backoff.BackOff
}

type unit struct {
	worker   *worker.Worker
	logger   *slog.Logger
	restarts atomic.Uint64
}

func New(nodes []model.NodeDescriptor, dialer stream.Dialer, policy RestartPolicy, logger *slog.Logger) (*Supervisor, error) {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	st, err := store.New(ids)
	if err != nil {
		return nil, fmt.Errorf("stats store: %w", err)
	}

	s := &Supervisor{
		logger: logger,
		store:  st,
		policy: policy,
		units:  make([]*unit, 0, len(nodes)),
	}
	s.newBackoff = func() backoff.BackOff {
		return backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(s.policy.Initial),
			backoff.WithMaxInterval(s.policy.Max),
			backoff.WithMaxElapsedTime(0),
		)
	}
	for _, n := range nodes {
		nodeLogger := NodeLogger(logger, n)
		s.units = append(s.units, &unit{
			worker: worker.New(n, dialer, st, nodeLogger),
			logger: nodeLogger,
		})
	}
	return s, nil
}

func (s *Supervisor) Store() *store.Store { return s.store }

// Status reports every worker in configuration order.
func (s *Supervisor) Status() []model.NodeStatus {
	out := make([]model.NodeStatus, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, model.NodeStatus{
			ID:       u.worker.Node().ID,
			State:    u.worker.State().String(),
			Restarts: u.restarts.Load(),
			Frames:   u.worker.Frames(),
		})
	}
	return out
}

// Run starts every worker and blocks until all of them have exited, which
// happens when ctx is cancelled or, with restarts disabled, when every
// connection has closed. A failing node never stops the others.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("starting workers", "nodes", len(s.units), "restart", s.policy.Enabled)
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range s.units {
		g.Go(func() error {
			s.runUnit(gctx, u)
			return nil
		})
	}
	return g.Wait()
}

func (s *Supervisor) runUnit(ctx context.Context, u *unit) {
	b := s.newBackoff()
	for {
		err := s.runOnce(ctx, u)
		if ctx.Err() != nil {
			return
		}
		if !s.policy.Enabled {
			u.logger.Info("worker stopped, restart disabled")
			return
		}
		if !errors.Is(err, stream.ErrHandshake) {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			u.logger.Error("restart budget exhausted", "error", err)
			return
		}
		u.logger.Info("restarting worker", "in", wait)
		if !sleepWithContext(ctx, wait) {
			return
		}
		u.restarts.Add(1)
	}
}

func (s *Supervisor) runOnce(ctx context.Context, u *unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			id := u.worker.Node().ID
			u.logger.Error("worker panicked", "panic", r)
			if serr := s.store.SetConnected(id, false, time.Now()); serr != nil {
				u.logger.Debug("record connection state failed", "error", serr)
			}
			err = fmt.Errorf("worker %s panicked: %v", id, r)
		}
	}()
	return u.worker.Run(ctx)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
