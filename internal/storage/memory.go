package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// MemoryStore is an in-memory Store implementation for tests and
// ephemeral indexes. It mirrors the BadgerStore commit semantics:
// nothing becomes visible until the generation counter advances.
type MemoryStore struct {
	mu       sync.Mutex
	gen      uint64
	entities []*entity.Entity
	edges    []graph.Edge
	closed   bool

	// FailCommits makes every CommitSnapshot fail with ErrStorage,
	// for exercising the fail-safe path in tests.
	FailCommits bool
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Initialize implements Store.
func (m *MemoryStore) Initialize(path string, readOnly bool) error {
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CommitSnapshot implements Store.
func (m *MemoryStore) CommitSnapshot(ctx context.Context, entities []*entity.Entity, edges []graph.Edge) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCommits {
		return 0, fmt.Errorf("committing snapshot: %w", ErrStorage)
	}

	stagedEntities := make([]*entity.Entity, len(entities))
	copy(stagedEntities, entities)
	stagedEdges := make([]graph.Edge, len(edges))
	copy(stagedEdges, edges)

	m.entities = stagedEntities
	m.edges = stagedEdges
	m.gen++
	return m.gen, nil
}

// LoadCurrent implements Store.
func (m *MemoryStore) LoadCurrent(ctx context.Context) (*graph.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return graph.NewSnapshot(m.gen, m.entities, m.edges)
}
