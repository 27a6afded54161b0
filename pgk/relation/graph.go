package relation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownIdentity no snapshot is registered for the identity
	ErrUnknownIdentity = errors.New("relation: unknown identity")
	// ErrIDOutOfRange the id does not fit a bigint column
	ErrIDOutOfRange = errors.New("relation: id out of range")
)

// Graph relation snapshots per local identity
type Graph struct {
	mu        sync.RWMutex
	snapshots map[uint64]*Snapshot
}

// NewGraph new graph
func NewGraph() *Graph {
	return &Graph{
		snapshots: make(map[uint64]*Snapshot),
	}
}

// Register returns the snapshot for identity, creating it on first use
func (g *Graph) Register(identity uint64) *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap, ok := g.snapshots[identity]
	if !ok {
		snap = newSnapshot(identity)
		g.snapshots[identity] = snap
	}

	return snap
}

// SnapshotFor snapshot of a registered identity
func (g *Graph) SnapshotFor(identity uint64) (*Snapshot, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap, ok := g.snapshots[identity]
	if !ok {
		return nil, fmt.Errorf("snapshot for %d: %w", identity, ErrUnknownIdentity)
	}

	return snap, nil
}

// SubscribeChanges register fn on the identity's change feed
func (g *Graph) SubscribeChanges(identity uint64, fn ChangeFunc) (cancel func(), err error) {
	snap, err := g.SnapshotFor(identity)
	if err != nil {
		return nil, err
	}

	return snap.Subscribe(fn), nil
}

// Identities registered identities, ascending
func (g *Graph) Identities() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]uint64, 0, len(g.snapshots))
	for id := range g.snapshots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
