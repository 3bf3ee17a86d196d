package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"lavalink-stats/internal/model"
	"lavalink-stats/internal/stream"
)

type scriptedConn struct {
	frames []string
	end    error
	mu     sync.Mutex
}

func (c *scriptedConn) Read(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	if len(c.frames) > 0 {
		f := c.frames[0]
		c.frames = c.frames[1:]
		c.mu.Unlock()
		return []byte(f), nil
	}
	c.mu.Unlock()
	if c.end != nil {
		return nil, c.end
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c *scriptedConn) Close() error { return nil }

// dialFunc adapts a function to stream.Dialer.
type dialFunc func(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error)

func (f dialFunc) Dial(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
	return f(ctx, node)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nodes(ids ...string) []model.NodeDescriptor {
	out := make([]model.NodeDescriptor, 0, len(ids))
	for i, id := range ids {
		out = append(out, model.NodeDescriptor{ID: id, Host: "127.0.0.1", Port: 2333 + i})
	}
	return out
}

func TestNewRejectsDuplicateNodes(t *testing.T) {
	_, err := New(nodes("alpha", "alpha"), dialFunc(nil), RestartPolicy{}, testLogger())
	if err == nil {
		t.Fatal("expected duplicate node error")
	}
}

func TestRunIsolatesNodeFailures(t *testing.T) {
	dialer := dialFunc(func(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
		switch node.ID {
		case "alpha":
			return &scriptedConn{frames: []string{`{"op":"stats","players":3}`, `garbage`}, end: stream.ErrClosed}, nil
		default:
			return nil, &stream.HandshakeError{URL: node.URL(), StatusCode: 401, Err: errors.New("unauthorized")}
		}
	})

	sup, err := New(nodes("alpha", "beta"), dialer, RestartPolicy{}, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sup.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not return after all workers closed")
	}

	st := sup.Store()
	alpha, _ := st.Get("alpha")
	out, _ := json.Marshal(alpha.Stats)
	if string(out) != `{"op":"stats","players":3}` || alpha.Timestamp == 0 {
		t.Fatalf("alpha = %s @ %d", out, alpha.Timestamp)
	}
	beta, _ := st.Get("beta")
	if len(beta.Stats) != 0 || beta.Timestamp != 0 {
		t.Fatalf("beta = %+v", beta)
	}

	for _, s := range sup.Status() {
		if s.State != "closed" || s.Restarts != 0 {
			t.Fatalf("unexpected status %+v", s)
		}
	}
}

func TestRunRestartsWithBackoff(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	dialer := dialFunc(func(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return nil, &stream.HandshakeError{URL: node.URL(), Err: errors.New("connection refused")}
		}
		return &scriptedConn{frames: []string{`{"op":"stats","uptime":1}`}}, nil
	})

	policy := RestartPolicy{Enabled: true, Initial: time.Millisecond, Max: 5 * time.Millisecond}
	sup, err := New(nodes("alpha"), dialer, policy, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		snap, _ := sup.Store().Get("alpha")
		if snap.Timestamp != 0 && snap.Connected {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("node never recovered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}

	status := sup.Status()[0]
	if status.Restarts != 2 || status.Frames != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRunRecoversWorkerPanic(t *testing.T) {
	dialer := dialFunc(func(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
		if node.ID == "alpha" {
			panic("boom")
		}
		return &scriptedConn{frames: []string{`{"op":"stats"}`}, end: stream.ErrClosed}, nil
	})
	sup, err := New(nodes("alpha", "beta"), dialer, RestartPolicy{}, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if snap, _ := sup.Store().Get("beta"); snap.Timestamp == 0 {
		t.Fatal("beta should have published despite alpha panic")
	}
}

func TestNodeLoggerQuiet(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	quiet := NodeLogger(base, model.NodeDescriptor{ID: "alpha", Quiet: true})
	quiet.Info("connected to node")
	quiet.Warn("connection closed")
	quiet.Error("could not parse message")

	loud := NodeLogger(base, model.NodeDescriptor{ID: "beta"})
	loud.Info("connected to node")

	out := buf.String()
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(line, "node=alpha") && !strings.Contains(line, "level=ERROR") {
			t.Fatalf("quiet node leaked non-error record: %s", line)
		}
	}
	if !strings.Contains(out, "could not parse message") {
		t.Fatalf("quiet node dropped error record:\n%s", out)
	}
	if !strings.Contains(out, "node=beta") {
		t.Fatalf("regular node record missing:\n%s", out)
	}
}

type panicConn struct{ reads int }

func (c *panicConn) Read(ctx context.Context) ([]byte, error) {
	c.reads++
	if c.reads == 1 {
		return []byte(`{"op":"stats","players":1}`), nil
	}
	panic("decoder bug")
}

func (c *panicConn) Close() error { return nil }

func TestRunPanicMarksNodeDisconnected(t *testing.T) {
	dialer := dialFunc(func(ctx context.Context, node model.NodeDescriptor) (stream.Conn, error) {
		return &panicConn{}, nil
	})
	sup, err := New(nodes("alpha"), dialer, RestartPolicy{}, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap, err := sup.Store().Get("alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Connected || snap.StaleSince == 0 {
		t.Fatalf("expected disconnected node with stale_since, got %+v", snap)
	}
	if snap.Timestamp == 0 {
		t.Fatal("stats published before the panic were lost")
	}
}
