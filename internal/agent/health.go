package agent

import (
	"time"

	"lavalink-stats/internal/model"
)

type connectedCounter interface {
	Len() int
	Connected() int
}

// HealthStatus derives process health from the stats store and the
// supervisor's worker view.
type HealthStatus struct {
	startedAt time.Time
	store     connectedCounter
	workers   func() []model.NodeStatus
	now       func() time.Time
}

func NewHealthStatus(store connectedCounter, workers func() []model.NodeStatus) *HealthStatus {
	return &HealthStatus{
		startedAt: time.Now(),
		store:     store,
		workers:   workers,
		now:       time.Now,
	}
}

func (h *HealthStatus) Snapshot() model.Health {
	total, connected := h.store.Len(), h.store.Connected()
	out := model.Health{
		Status:         model.HealthStatusFor(total, connected),
		NodesTotal:     total,
		NodesConnected: connected,
		UptimeSeconds:  h.now().Sub(h.startedAt).Seconds(),
	}
	if h.workers != nil {
		out.Nodes = h.workers()
	}
	return out
}
