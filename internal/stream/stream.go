package stream

import (
	"context"
	"errors"
	"fmt"

	"lavalink-stats/internal/model"
)

var (
	ErrHandshake = errors.New("handshake rejected")
	ErrClosed    = errors.New("connection closed by peer")
)

// Conn is one established node connection. Read returns the next frame.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens authenticated connections to nodes.
type Dialer interface {
	Dial(ctx context.Context, node model.NodeDescriptor) (Conn, error)
}

// HandshakeError reports a failed connect or upgrade. StatusCode is zero
// when the endpoint was unreachable.
type HandshakeError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *HandshakeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("handshake with %s rejected (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }
