package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Key layout. All snapshot data lives under a per-generation prefix so
// a commit is one batched write plus a single pointer flip, and stale
// generations can be dropped wholesale.
const (
	keyCurrentGen = "meta:current" // 8-byte big-endian generation
	prefixSnap    = "s:"           // s:<gen16x>:e:<keyID> / s:<gen16x>:r:<seq>
)

func genPrefix(gen uint64) string {
	return fmt.Sprintf("%s%016x:", prefixSnap, gen)
}

func entityKey(gen uint64, id string) []byte {
	return []byte(genPrefix(gen) + "e:" + id)
}

func edgeKey(gen uint64, seq int) []byte {
	return []byte(fmt.Sprintf("%sr:%012d", genPrefix(gen), seq))
}

// BadgerStore is a BadgerDB-backed Store implementation.
type BadgerStore struct {
	mu sync.Mutex // serializes commits; reads need no lock
	db *badger.DB
}

// NewBadgerStore creates a new BadgerDB store.
func NewBadgerStore() *BadgerStore {
	return &BadgerStore{}
}

// Initialize opens or creates the BadgerDB database at the given path.
func (b *BadgerStore) Initialize(path string, readOnly bool) error {
	opts := badger.DefaultOptions(path).
		WithNumCompactors(2).
		WithNumMemtables(5).
		WithLoggingLevel(badger.ERROR) // suppress INFO/WARNING logs

	if readOnly {
		opts = opts.WithReadOnly(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("opening badger DB: %w: %v", ErrStorage, err)
	}
	b.db = db
	return nil
}

// Close releases all resources held by the store.
func (b *BadgerStore) Close() error {
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	if err != nil {
		return fmt.Errorf("closing badger DB: %w: %v", ErrStorage, err)
	}
	return nil
}

// CommitSnapshot writes the full entity and edge set under the next
// generation prefix via a write batch, then flips the current pointer
// in its own transaction. Generation N-2 is dropped best-effort after
// the flip; N-1 is retained so a reader that resolved the pointer just
// before the flip still finds its data.
func (b *BadgerStore) CommitSnapshot(ctx context.Context, entities []*entity.Entity, edges []graph.Edge) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, err := b.currentGeneration()
	if err != nil {
		return 0, err
	}
	gen := prev + 1

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := json.Marshal(e)
		if err != nil {
			return 0, fmt.Errorf("marshaling entity %s: %w", e.Key.ID(), err)
		}
		if err := wb.Set(entityKey(gen, e.Key.ID()), data); err != nil {
			return 0, fmt.Errorf("writing entity: %w: %v", ErrStorage, err)
		}
	}
	for i, edge := range edges {
		data, err := json.Marshal(edge)
		if err != nil {
			return 0, fmt.Errorf("marshaling edge %d: %w", i, err)
		}
		if err := wb.Set(edgeKey(gen, i), data); err != nil {
			return 0, fmt.Errorf("writing edge: %w: %v", ErrStorage, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flushing snapshot batch: %w: %v", ErrStorage, err)
	}

	// Only now does the new generation become visible.
	err = b.db.Update(func(txn *badger.Txn) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], gen)
		return txn.Set([]byte(keyCurrentGen), buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("flipping current generation: %w: %v", ErrStorage, err)
	}

	// Keep the previous generation alive for readers whose View
	// transaction started before the pointer flip; only the one
	// before that is unreachable and safe to drop.
	if prev > 1 {
		_ = b.db.DropPrefix([]byte(genPrefix(prev - 1)))
	}

	return gen, nil
}

// LoadCurrent reads the current generation into a snapshot. The
// pointer read and the prefix scan share one View transaction so a
// concurrent commit cannot retarget the scan mid-load.
func (b *BadgerStore) LoadCurrent(ctx context.Context) (*graph.Snapshot, error) {
	var gen uint64
	var entities []*entity.Entity
	var edges []graph.Edge

	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		gen, err = currentGeneration(txn)
		if err != nil {
			return err
		}
		if gen == 0 {
			return nil
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(genPrefix(gen) + "e:")
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var e entity.Entity
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				it.Close()
				return fmt.Errorf("unmarshaling entity: %w", err)
			}
			entities = append(entities, &e)
		}
		it.Close()

		opts.Prefix = []byte(genPrefix(gen) + "r:")
		it = txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var edge graph.Edge
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &edge)
			}); err != nil {
				return fmt.Errorf("unmarshaling edge: %w", err)
			}
			edges = append(edges, edge)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %d: %w: %v", gen, ErrStorage, err)
	}

	return graph.NewSnapshot(gen, entities, edges)
}

func (b *BadgerStore) currentGeneration() (uint64, error) {
	var gen uint64
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		gen, err = currentGeneration(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("reading current generation: %w: %v", ErrStorage, err)
	}
	return gen, nil
}

func currentGeneration(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(keyCurrentGen))
	if err == badger.ErrKeyNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var gen uint64
	err = item.Value(func(val []byte) error {
		if len(val) == 8 {
			gen = binary.BigEndian.Uint64(val)
		}
		return nil
	})
	return gen, err
}
