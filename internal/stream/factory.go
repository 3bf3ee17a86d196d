package stream

import (
	"crypto/tls"
	"log/slog"

	"lavalink-stats/internal/config"
)

func NewDialerFromConfig(cfg config.Config, tlsCfg *tls.Config, logger *slog.Logger) Dialer {
	return NewWebSocketDialer(
		cfg.ClientName,
		tlsCfg,
		cfg.HandshakeTimeout,
		cfg.PingInterval,
		cfg.ReadLimit,
		logger,
	)
}
