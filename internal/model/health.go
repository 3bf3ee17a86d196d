package model

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
	HealthDown     = "down"
)

type Health struct {
	Status         string       `json:"status"`
	NodesTotal     int          `json:"nodes_total"`
	NodesConnected int          `json:"nodes_connected"`
	UptimeSeconds  float64      `json:"uptime_seconds"`
	Nodes          []NodeStatus `json:"nodes,omitempty"`
}

// HealthStatusFor grades the node pool: ok when every node is connected,
// down when none is.
func HealthStatusFor(total, connected int) string {
	switch {
	case total > 0 && connected >= total:
		return HealthOK
	case connected > 0:
		return HealthDegraded
	default:
		return HealthDown
	}
}

// NodeStatus describes the connection worker of one node.
type NodeStatus struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Restarts uint64 `json:"restarts"`
	Frames   uint64 `json:"frames"`
}
