package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"lavalink-stats/internal/model"
)

// WebSocketDialer connects to nodes over websocket, passing the node
// credentials as handshake headers.
type WebSocketDialer struct {
	logger           *slog.Logger
	clientName       string
	tlsConfig        *tls.Config
	handshakeTimeout time.Duration
	pingInterval     time.Duration
	readLimit        int64
}

func NewWebSocketDialer(clientName string, tlsCfg *tls.Config, handshakeTimeout, pingInterval time.Duration, readLimit int64, logger *slog.Logger) *WebSocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	if readLimit <= 0 {
		readLimit = 1 << 20
	}
	return &WebSocketDialer{
		logger:           logger,
		clientName:       clientName,
		tlsConfig:        tlsCfg,
		handshakeTimeout: handshakeTimeout,
		pingInterval:     pingInterval,
		readLimit:        readLimit,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, node model.NodeDescriptor) (Conn, error) {
	url := node.URL()
	h := http.Header{}
	h.Set("Authorization", node.Password)
	h.Set("User-Id", strconv.FormatInt(node.UserID, 10))
	h.Set("Client-Name", d.clientName)

	opt := &websocket.DialOptions{HTTPHeader: h}
	if node.Secure && d.tlsConfig != nil {
		opt.HTTPClient = &http.Client{Transport: &http.Transport{TLSClientConfig: d.tlsConfig.Clone()}}
	}

	dialCtx, cancel := context.WithTimeout(ctx, d.handshakeTimeout)
	defer cancel()
	conn, resp, err := websocket.Dial(dialCtx, url, opt)
	if err != nil {
		herr := &HandshakeError{URL: url, Err: err}
		if resp != nil {
			herr.StatusCode = resp.StatusCode
		}
		return nil, herr
	}
	conn.SetReadLimit(d.readLimit)

	c := &wsConn{conn: conn, logger: d.logger.With("url", url)}
	c.startPingLoop(d.pingInterval)
	return c, nil
}

type wsConn struct {
	conn   *websocket.Conn
	logger *slog.Logger

	closeOnce  sync.Once
	pingCancel context.CancelFunc
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		if code := websocket.CloseStatus(err); code != -1 {
			return nil, fmt.Errorf("%w (status %d)", ErrClosed, code)
		}
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.pingCancel()
		err = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
	})
	return err
}

func (c *wsConn) startPingLoop(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				pingCtx, pingCancel := context.WithTimeout(ctx, interval)
				if err := c.conn.Ping(pingCtx); err != nil && ctx.Err() == nil {
					c.logger.Debug("websocket ping failed", "error", err)
				}
				pingCancel()
			}
		}
	}()
}
