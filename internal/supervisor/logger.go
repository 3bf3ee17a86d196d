package supervisor

import (
	"context"
	"log/slog"

	"lavalink-stats/internal/model"
)

// NodeLogger tags records with the node id. Quiet nodes only emit errors.
func NodeLogger(base *slog.Logger, node model.NodeDescriptor) *slog.Logger {
	l := base
	if node.Quiet {
		l = slog.New(quietHandler{base.Handler()})
	}
	return l.With("node", node.ID)
}

type quietHandler struct {
	slog.Handler
}

func (h quietHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelError && h.Handler.Enabled(ctx, level)
}

func (h quietHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return quietHandler{h.Handler.WithAttrs(attrs)}
}

func (h quietHandler) WithGroup(name string) slog.Handler {
	return quietHandler{h.Handler.WithGroup(name)}
}
