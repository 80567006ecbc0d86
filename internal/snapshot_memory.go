package internal

import (
	"context"
	"sync"

	"github.com/tessera-data/tessera"
)

// MemorySnapshotStore is an in-process SnapshotStore. Snapshots are
// append-only per (sourceID, collection); the latest is resolved by maximum
// FetchedAt, so a refresh supersedes rather than mutates.
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string][]*tessera.CollectionSnapshot

	// MaxGenerations caps how many superseded snapshots are retained per
	// collection; 0 keeps everything.
	MaxGenerations int
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots:      make(map[string][]*tessera.CollectionSnapshot),
		MaxGenerations: 4,
	}
}

func snapshotKey(sourceID, collection string) string {
	return sourceID + "/" + collection
}

// GetLatest returns the newest snapshot for a collection, or nil when none
// has been stored. The returned snapshot is shared and must be treated as
// read-only.
func (s *MemorySnapshotStore) GetLatest(ctx context.Context, sourceID, collection string) (*tessera.CollectionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	generations := s.snapshots[snapshotKey(sourceID, collection)]
	if len(generations) == 0 {
		return nil, nil
	}
	latest := generations[0]
	for _, snap := range generations[1:] {
		if snap.FetchedAt.After(latest.FetchedAt) {
			latest = snap
		}
	}
	return latest, nil
}

// Put stores a new snapshot generation.
func (s *MemorySnapshotStore) Put(ctx context.Context, snapshot *tessera.CollectionSnapshot) error {
	if snapshot == nil {
		return tessera.NewSnapshotStoreError("cannot store nil snapshot", nil)
	}
	key := snapshotKey(snapshot.SourceID, snapshot.Collection)

	s.mu.Lock()
	defer s.mu.Unlock()
	generations := append(s.snapshots[key], snapshot)
	if s.MaxGenerations > 0 && len(generations) > s.MaxGenerations {
		generations = generations[len(generations)-s.MaxGenerations:]
	}
	s.snapshots[key] = generations
	return nil
}
