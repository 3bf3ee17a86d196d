// Package worker runs the connection lifecycle of a single node.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/stream"
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Publisher is the write side of the stats store, restricted by convention
// to the worker's own node id.
type Publisher interface {
	Set(id string, snap model.Snapshot) error
	SetConnected(id string, connected bool, at time.Time) error
}

// Worker owns one node connection. Run may be called again after it returns;
// each call is an independent session.
type Worker struct {
	node   model.NodeDescriptor
	dialer stream.Dialer
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time

	state  atomic.Int32
	frames atomic.Uint64
}

func New(node model.NodeDescriptor, dialer stream.Dialer, pub Publisher, logger *slog.Logger) *Worker {
	return &Worker{
		node:   node,
		dialer: dialer,
		pub:    pub,
		logger: logger,
		now:    time.Now,
	}
}

func (w *Worker) Node() model.NodeDescriptor { return w.node }

func (w *Worker) State() State { return State(w.state.Load()) }

// Frames is the number of stats frames published over the worker's lifetime.
func (w *Worker) Frames() uint64 { return w.frames.Load() }

// Run connects, streams until the connection ends and returns why it ended.
// Errors matching stream.ErrHandshake mean the session never reached
// streaming. A nil error means ctx was cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.setState(StateConnecting)
	w.logger.Info("connecting to node", "url", w.node.URL())

	conn, err := w.dialer.Dial(ctx, w.node)
	if err != nil {
		w.setState(StateClosed)
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Error("could not connect to node", "error", err)
		if errors.Is(err, stream.ErrHandshake) {
			return err
		}
		return fmt.Errorf("%w: %w", stream.ErrHandshake, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			w.logger.Debug("connection close failed", "error", cerr)
		}
	}()

	w.setState(StateStreaming)
	w.markConnected(true)
	w.logger.Info("connected to node")

	err = w.stream(ctx, conn)

	w.markConnected(false)
	w.setState(StateClosed)
	if ctx.Err() != nil {
		w.logger.Info("connection closed", "reason", "shutdown")
		return nil
	}
	w.logger.Warn("connection closed", "error", err)
	return err
}

func (w *Worker) stream(ctx context.Context, conn stream.Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		w.logger.Debug("received message", "bytes", len(data))
		w.handleFrame(data)
	}
}

func (w *Worker) handleFrame(data []byte) {
	frame, err := stream.DecodeFrame(data)
	if err != nil {
		w.logger.Error("could not parse message", "error", err)
		return
	}
	if !frame.IsStats() {
		return
	}
	snap := model.Snapshot{
		Stats:     frame.Payload,
		Timestamp: w.now().UnixMilli(),
		Connected: true,
	}
	if err := w.pub.Set(w.node.ID, snap); err != nil {
		w.logger.Error("publish stats failed", "error", err)
		return
	}
	w.frames.Add(1)
}

func (w *Worker) markConnected(ok bool) {
	if err := w.pub.SetConnected(w.node.ID, ok, w.now()); err != nil {
		w.logger.Error("record connection state failed", "error", err)
	}
}

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		w.logger.Debug("worker state", "from", prev.String(), "to", s.String())
	}
}
