package storage

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

func fnKey(name, path string) entity.Key {
	return entity.Key{
		Language:  entity.LangGo,
		Kind:      entity.KindFunction,
		Name:      name,
		Path:      path,
		StartLine: 1,
		EndLine:   9,
	}
}

func sampleGraph() ([]*entity.Entity, []graph.Edge) {
	a := entity.New(fnKey("a", "a.go"))
	b := entity.New(fnKey("b", "b.go"))
	ext := entity.New(entity.ExternalKey(entity.LangGo, entity.KindFunction, "Printf"))

	edges := []graph.Edge{
		{Source: a.Key, Target: b.Key, Kind: graph.EdgeCalls},
		{Source: b.Key, Target: ext.Key, Kind: graph.EdgeCalls},
	}
	return []*entity.Entity{a, b, ext}, edges
}

// roundTrip exercises the Store contract shared by both backends.
func roundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	// Empty store serves an empty generation-zero snapshot.
	snap, err := store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.Generation)
	assert.Equal(t, 0, snap.EntityCount())

	ents, edges := sampleGraph()
	gen, err := store.CommitSnapshot(ctx, ents, edges)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	snap, err = store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 3, snap.EntityCount())
	assert.Equal(t, 2, snap.EdgeCount())
	assert.Equal(t, 1, snap.ExternalCount())

	got, err := snap.Entity(ents[0].Key)
	require.NoError(t, err)
	assert.Equal(t, ents[0].Key, got.Key)

	// A second commit replaces the snapshot wholesale.
	gen, err = store.CommitSnapshot(ctx, ents[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), gen)

	snap, err = store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Generation)
	assert.Equal(t, 1, snap.EntityCount())
	assert.Equal(t, 0, snap.EdgeCount())
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.NoError(t, store.Initialize("", false))
	defer func() { _ = store.Close() }()

	roundTrip(t, store)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	t.Parallel()

	store := NewBadgerStore()
	require.NoError(t, store.Initialize(t.TempDir(), false))
	defer func() { _ = store.Close() }()

	roundTrip(t, store)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	store := NewBadgerStore()
	require.NoError(t, store.Initialize(dir, false))
	ents, edges := sampleGraph()
	_, err := store.CommitSnapshot(ctx, ents, edges)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened := NewBadgerStore()
	require.NoError(t, reopened.Initialize(dir, true))
	defer func() { _ = reopened.Close() }()

	snap, err := reopened.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 3, snap.EntityCount())
	assert.Equal(t, 2, snap.EdgeCount())
}

func TestBadgerStore_CommitRetainsPreviousGeneration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewBadgerStore()
	require.NoError(t, store.Initialize(t.TempDir(), false))
	defer func() { _ = store.Close() }()

	ents, edges := sampleGraph()
	_, err := store.CommitSnapshot(ctx, ents, edges)
	require.NoError(t, err)
	_, err = store.CommitSnapshot(ctx, ents[:2], edges[:1])
	require.NoError(t, err)

	// A reader that resolved the pointer just before the second
	// commit flipped it must still find generation 1's keys.
	assert.Equal(t, 3, countPrefix(t, store, genPrefix(1)+"e:"))
	assert.Equal(t, 2, countPrefix(t, store, genPrefix(2)+"e:"))

	// The third commit makes generation 1 unreachable and drops it.
	_, err = store.CommitSnapshot(ctx, ents[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, 0, countPrefix(t, store, genPrefix(1)+"e:"))
	assert.Equal(t, 2, countPrefix(t, store, genPrefix(2)+"e:"))

	snap, err := store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Generation)
	assert.Equal(t, 1, snap.EntityCount())
}

func countPrefix(t *testing.T, store *BadgerStore, prefix string) int {
	t.Helper()
	var n int
	err := store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestMemoryStore_FailedCommitKeepsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := NewMemoryStore()
	ents, edges := sampleGraph()
	_, err := store.CommitSnapshot(ctx, ents, edges)
	require.NoError(t, err)

	store.FailCommits = true
	_, err = store.CommitSnapshot(ctx, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)

	snap, err := store.LoadCurrent(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, 3, snap.EntityCount())
}
