// Package storage provides durable snapshot storage for Lattice.
//
// A store persists whole snapshots: one indexing run commits its
// entire entity and edge set atomically, after which the snapshot is
// read-only. The current-generation pointer is flipped only once a
// commit is fully written, so readers never observe a half-built
// graph; a failed commit leaves the previously served snapshot intact.
package storage

import (
	"context"
	"errors"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// ErrStorage wraps any underlying persistence read/write failure.
var ErrStorage = errors.New("storage failure")

// Store defines the interface for snapshot storage implementations.
//
// Implementations must be safe for concurrent use: CommitSnapshot may
// run while LoadCurrent serves readers, and the generation pointer
// flip is the only point of coordination.
type Store interface {
	// Initialize opens or creates the store at the given path.
	// If readOnly is true, the store is opened in read-only mode.
	Initialize(path string, readOnly bool) error

	// Close releases all resources held by the store.
	Close() error

	// CommitSnapshot durably writes a complete entity and edge set as
	// a new generation and flips the current-generation pointer.
	// The write is atomic per snapshot: a failure at any point leaves
	// the previous generation current. Returns the new generation.
	CommitSnapshot(ctx context.Context, entities []*entity.Entity, edges []graph.Edge) (uint64, error)

	// LoadCurrent reads the current generation into an in-memory
	// snapshot with its adjacency indexes built. A store with no
	// committed snapshot yields an empty generation-zero snapshot.
	LoadCurrent(ctx context.Context) (*graph.Snapshot, error)
}
