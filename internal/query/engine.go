// Package query composes the store, graph index, traversal, ranking,
// and selection layers into the read-only operation surface served to
// clients. Every operation is pure with respect to the snapshot it
// runs against: same input, same output, no side effects.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
	"github.com/latticegraph/lattice/internal/rank"
	"github.com/latticegraph/lattice/internal/selector"
	"github.com/latticegraph/lattice/internal/storage"
	"github.com/latticegraph/lattice/internal/traverse"
)

// ErrInvalidParameter marks malformed keys and non-positive or
// non-numeric hop/budget/top values. Recoverable per request.
var ErrInvalidParameter = errors.New("invalid parameter")

// Engine serves read queries against the current snapshot.
//
// The snapshot pointer is swapped atomically on re-index: queries in
// flight keep the *Snapshot they loaded and finish against it, so no
// reader ever observes a partially built graph. There is no other
// shared mutable state.
type Engine struct {
	store   storage.Store
	current atomic.Pointer[graph.Snapshot]
}

// NewEngine creates an engine serving the store's current snapshot.
func NewEngine(ctx context.Context, store storage.Store) (*Engine, error) {
	e := &Engine{store: store}
	snap, err := store.LoadCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading current snapshot: %w", err)
	}
	e.current.Store(snap)
	return e, nil
}

// Snapshot returns the currently served snapshot.
func (e *Engine) Snapshot() *graph.Snapshot {
	return e.current.Load()
}

// Reload re-reads the store's current generation and swaps it in.
// On failure the previously served snapshot keeps serving.
func (e *Engine) Reload(ctx context.Context) error {
	snap, err := e.store.LoadCurrent(ctx)
	if err != nil {
		return fmt.Errorf("reloading snapshot: %w", err)
	}
	e.current.Store(snap)
	return nil
}

// Swap installs an already-built snapshot (used by the rebuild watcher
// after a successful commit, avoiding a second store read).
func (e *Engine) Swap(snap *graph.Snapshot) {
	if snap != nil {
		e.current.Store(snap)
	}
}

// Stats summarizes the served snapshot.
type Stats struct {
	Generation uint64                  `json:"generation"`
	Entities   int                     `json:"entities"`
	Edges      int                     `json:"edges"`
	External   int                     `json:"external_entities"`
	ByKind     map[entity.Kind]int     `json:"by_kind"`
	ByLanguage map[entity.Language]int `json:"by_language"`
}

// Stats returns snapshot-level statistics.
func (e *Engine) Stats() *Stats {
	s := e.Snapshot()
	return &Stats{
		Generation: s.Generation,
		Entities:   s.EntityCount(),
		Edges:      s.EdgeCount(),
		External:   s.ExternalCount(),
		ByKind:     s.CountByKind(),
		ByLanguage: s.CountByLanguage(),
	}
}

// ListEntities returns entities filtered by optional kind and language.
// Unknown filter values simply match nothing.
func (e *Engine) ListEntities(kind, language string) []*entity.Entity {
	return e.Snapshot().Entities(entity.Kind(kind), entity.Language(language))
}

// Entity returns the entity for a wire-form key string.
func (e *Engine) Entity(keyStr string) (*entity.Entity, error) {
	key, err := parseKeyParam(keyStr)
	if err != nil {
		return nil, err
	}
	return e.Snapshot().Entity(key)
}

// ListEdges returns all edges in the snapshot.
func (e *Engine) ListEdges() []graph.Edge {
	return e.Snapshot().Edges()
}

// Search runs fuzzy name search.
func (e *Engine) Search(q string, limit int) *rank.SearchResult {
	if limit <= 0 {
		limit = 20
	}
	return rank.Search(e.Snapshot(), q, limit)
}

// Callers returns the direct reverse neighbors of the key.
func (e *Engine) Callers(keyStr string) ([]traverse.Related, error) {
	key, err := parseKeyParam(keyStr)
	if err != nil {
		return nil, err
	}
	return traverse.Callers(e.Snapshot(), key)
}

// Callees returns the direct forward neighbors of the key.
func (e *Engine) Callees(keyStr string) ([]traverse.Related, error) {
	key, err := parseKeyParam(keyStr)
	if err != nil {
		return nil, err
	}
	return traverse.Callees(e.Snapshot(), key)
}

// BlastRadius runs the N-hop reverse impact expansion.
func (e *Engine) BlastRadius(keyStr string, hops int) (*traverse.BlastRadiusResult, error) {
	if hops <= 0 {
		return nil, fmt.Errorf("hops must be a positive integer, got %d: %w", hops, ErrInvalidParameter)
	}
	key, err := parseKeyParam(keyStr)
	if err != nil {
		return nil, err
	}
	return traverse.BlastRadius(e.Snapshot(), key, hops)
}

// Cycles runs whole-snapshot cycle detection.
func (e *Engine) Cycles() *traverse.CycleResult {
	return traverse.DetectCycles(e.Snapshot())
}

// Hotspots ranks the top-N entities by inbound coupling.
func (e *Engine) Hotspots(top int) ([]rank.Hotspot, error) {
	if top <= 0 {
		return nil, fmt.Errorf("top must be a positive integer, got %d: %w", top, ErrInvalidParameter)
	}
	return rank.Hotspots(e.Snapshot(), top), nil
}

// Clusters returns the deterministic semantic clusters.
func (e *Engine) Clusters() []rank.Cluster {
	return rank.Clusters(e.Snapshot(), rank.DefaultClusterThreshold)
}

// SmartContext selects budget-constrained context for a focus entity.
func (e *Engine) SmartContext(focusStr string, budget int) (*selector.Result, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("tokens must be a positive integer, got %d: %w", budget, ErrInvalidParameter)
	}
	focus, err := parseKeyParam(focusStr)
	if err != nil {
		return nil, err
	}
	return selector.Select(e.Snapshot(), focus, budget)
}

// CoupledPartner is one temporal coupling partner of an entity's file.
type CoupledPartner struct {
	Entity    *entity.Entity `json:"entity"`
	Strength  float64        `json:"strength"`
	CoChanges int            `json:"co_changes"`
}

// TemporalCoupling reports the entities whose files historically change
// together with the given entity's file, from coupled_with edges laid
// down at index time.
func (e *Engine) TemporalCoupling(keyStr string) ([]CoupledPartner, error) {
	key, err := parseKeyParam(keyStr)
	if err != nil {
		return nil, err
	}
	snap := e.Snapshot()
	ent, err := snap.Entity(key)
	if err != nil {
		return nil, err
	}

	partners := []CoupledPartner{}
	for _, edge := range snap.Edges() {
		if edge.Kind != graph.EdgeCoupledWith {
			continue
		}
		var otherKey entity.Key
		switch {
		case edge.Source.Path == ent.Key.Path:
			otherKey = edge.Target
		case edge.Target.Path == ent.Key.Path:
			otherKey = edge.Source
		default:
			continue
		}
		other, err := snap.Entity(otherKey)
		if err != nil {
			continue
		}
		partners = append(partners, CoupledPartner{
			Entity:    other,
			Strength:  edge.Weight,
			CoChanges: edge.CoChanges,
		})
	}

	sort.SliceStable(partners, func(i, j int) bool {
		if partners[i].Strength != partners[j].Strength {
			return partners[i].Strength > partners[j].Strength
		}
		return partners[i].Entity.Key.ID() < partners[j].Entity.Key.ID()
	})
	return partners, nil
}

func parseKeyParam(keyStr string) (entity.Key, error) {
	key, err := entity.ParseKey(keyStr)
	if err != nil {
		return entity.Key{}, fmt.Errorf("%v: %w", err, ErrInvalidParameter)
	}
	return key, nil
}
