package model

// OpStats is the op tag of frames carrying node statistics.
const OpStats = "stats"

// Snapshot is the last stats payload received from a node.
//
// A published Snapshot is immutable: Stats must not be modified once the
// value has been handed to the store.
type Snapshot struct {
	Stats      map[string]any
	Timestamp  int64 // unix millis of receipt, 0 if nothing received yet
	Connected  bool
	StaleSince int64 // unix millis of the last disconnect, 0 while connected or before the first session
}

// EmptySnapshot is the value every node starts with.
func EmptySnapshot() Snapshot {
	return Snapshot{Stats: map[string]any{}}
}

// NodeStats is the query-facing view of a Snapshot.
type NodeStats struct {
	ID         string         `json:"id"`
	Stats      map[string]any `json:"stats"`
	Timestamp  int64          `json:"timestamp"`
	Connected  bool           `json:"connected"`
	StaleSince int64          `json:"stale_since,omitempty"`
}

func NewNodeStats(id string, s Snapshot) NodeStats {
	stats := s.Stats
	if stats == nil {
		stats = map[string]any{}
	}
	return NodeStats{
		ID:         id,
		Stats:      stats,
		Timestamp:  s.Timestamp,
		Connected:  s.Connected,
		StaleSince: s.StaleSince,
	}
}
