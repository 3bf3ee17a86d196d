// Package store keeps the latest stats snapshot of every configured node.
package store

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"lavalink-stats/internal/model"
)

var ErrNotFound = errors.New("node not found")

// Store maps node ids to their latest snapshot. The key set is fixed at
// construction, so lookups never take a lock; each entry is swapped as a
// whole through an atomic pointer.
type Store struct {
	ids     []string
	entries map[string]*entry
}

type entry struct {
	snap atomic.Pointer[model.Snapshot]
}

// New creates a store holding an empty snapshot for every id, in the given
// order. Duplicate ids are rejected.
func New(ids []string) (*Store, error) {
	s := &Store{
		ids:     make([]string, 0, len(ids)),
		entries: make(map[string]*entry, len(ids)),
	}
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			return nil, fmt.Errorf("duplicate node id %q", id)
		}
		e := &entry{}
		empty := model.EmptySnapshot()
		e.snap.Store(&empty)
		s.entries[id] = e
		s.ids = append(s.ids, id)
	}
	return s, nil
}

// IDs returns the node ids in configuration order.
func (s *Store) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *Store) Len() int {
	return len(s.ids)
}

func (s *Store) Get(id string) (model.Snapshot, error) {
	e, ok := s.entries[id]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *e.snap.Load(), nil
}

// Set replaces the snapshot of id.
func (s *Store) Set(id string, snap model.Snapshot) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if snap.Stats == nil {
		snap.Stats = map[string]any{}
	}
	e.snap.Store(&snap)
	return nil
}

// SetConnected records a connection state change for id, keeping the stats
// payload and its timestamp.
func (s *Store) SetConnected(id string, connected bool, at time.Time) error {
	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for {
		cur := e.snap.Load()
		next := *cur
		next.Connected = connected
		if connected {
			next.StaleSince = 0
		} else if cur.Connected {
			next.StaleSince = at.UnixMilli()
		}
		if e.snap.CompareAndSwap(cur, &next) {
			return nil
		}
	}
}

// Connected counts nodes currently streaming.
func (s *Store) Connected() int {
	n := 0
	for _, e := range s.entries {
		if e.snap.Load().Connected {
			n++
		}
	}
	return n
}
