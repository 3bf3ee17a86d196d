package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/store"
	"lavalink-stats/internal/stream"
)

type fakeConn struct {
	frames chan []byte
	end    error
	closed chan struct{}
}

func newFakeConn(end error, frames ...string) *fakeConn {
	c := &fakeConn{frames: make(chan []byte, len(frames)), end: end, closed: make(chan struct{})}
	for _, f := range frames {
		c.frames <- []byte(f)
	}
	close(c.frames)
	return c
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			if c.end == nil {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return nil, c.end
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

type fakeDialer struct {
	conn  stream.Conn
	err   error
	nodes []model.NodeDescriptor
}

func (d *fakeDialer) Dial(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
	d.nodes = append(d.nodes, node)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T, ids ...string) *store.Store {
	t.Helper()
	s, err := store.New(ids)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return s
}

func TestRunPublishesStatsFrames(t *testing.T) {
	st := newStore(t, "alpha", "beta")
	conn := newFakeConn(stream.ErrClosed,
		`{"op":"stats","players":3}`,
		`{"op":"playerUpdate","state":{}}`,
		`not json`,
	)
	w := New(model.NodeDescriptor{ID: "alpha", Host: "a", Port: 1}, &fakeDialer{conn: conn}, st, testLogger())
	w.now = func() time.Time { return time.UnixMilli(1700000000123) }

	err := w.Run(context.Background())
	if !errors.Is(err, stream.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if w.State() != StateClosed {
		t.Fatalf("state = %s", w.State())
	}
	if w.Frames() != 1 {
		t.Fatalf("frames = %d", w.Frames())
	}

	snap, _ := st.Get("alpha")
	if snap.Timestamp != 1700000000123 {
		t.Fatalf("timestamp = %d", snap.Timestamp)
	}
	out, _ := json.Marshal(snap.Stats)
	if string(out) != `{"op":"stats","players":3}` {
		t.Fatalf("stats = %s", out)
	}
	if snap.Connected || snap.StaleSince != 1700000000123 {
		t.Fatalf("expected disconnected snapshot, got %+v", snap)
	}

	beta, _ := st.Get("beta")
	if beta.Timestamp != 0 || len(beta.Stats) != 0 {
		t.Fatalf("beta touched: %+v", beta)
	}

	select {
	case <-conn.closed:
	default:
		t.Fatal("connection was not closed")
	}
}

func TestRunLaterFramesSupersede(t *testing.T) {
	st := newStore(t, "alpha")
	conn := newFakeConn(stream.ErrClosed,
		`{"op":"stats","players":1}`,
		`{"op":"stats","players":2}`,
		`{"op":"event"}`,
		`{broken`,
	)
	w := New(model.NodeDescriptor{ID: "alpha"}, &fakeDialer{conn: conn}, st, testLogger())
	_ = w.Run(context.Background())

	snap, _ := st.Get("alpha")
	if got := snap.Stats["players"]; got != json.Number("2") {
		t.Fatalf("players = %v", got)
	}
}

func TestRunHandshakeFailure(t *testing.T) {
	st := newStore(t, "beta")
	before, _ := st.Get("beta")

	herr := &stream.HandshakeError{URL: "ws://b:1", StatusCode: 401, Err: errors.New("unauthorized")}
	w := New(model.NodeDescriptor{ID: "beta"}, &fakeDialer{err: herr}, st, testLogger())

	err := w.Run(context.Background())
	if !errors.Is(err, stream.ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
	if w.State() != StateClosed {
		t.Fatalf("state = %s", w.State())
	}
	after, _ := st.Get("beta")
	if after.Timestamp != before.Timestamp || len(after.Stats) != 0 || after.Connected {
		t.Fatalf("store changed on handshake failure: %+v", after)
	}
}

func TestRunPlainDialErrorIsHandshake(t *testing.T) {
	st := newStore(t, "beta")
	w := New(model.NodeDescriptor{ID: "beta"}, &fakeDialer{err: errors.New("boom")}, st, testLogger())
	if err := w.Run(context.Background()); !errors.Is(err, stream.ErrHandshake) {
		t.Fatalf("expected ErrHandshake, got %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newStore(t, "alpha")
	conn := newFakeConn(nil, `{"op":"stats","players":5}`)
	w := New(model.NodeDescriptor{ID: "alpha"}, &fakeDialer{conn: conn}, st, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.Frames() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame not published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap, _ := st.Get("alpha")
	if !snap.Connected {
		t.Fatal("expected connected while streaming")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil on cancel, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	if w.State() != StateClosed {
		t.Fatalf("state = %s", w.State())
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateStreaming:  "streaming",
		StateClosed:     "closed",
		State(9):        "state(9)",
	} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), s.String(), want)
		}
	}
}
