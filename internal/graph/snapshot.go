package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
)

// ErrEntityNotFound is returned when a referenced entity key is absent
// from the snapshot being queried.
var ErrEntityNotFound = errors.New("entity not found")

// Snapshot is one immutable, versioned build of the entity/edge graph.
//
// Entities are keyed by their canonical ID string; forward and reverse
// adjacency maps give O(1) average single-hop lookup. A snapshot is
// built once from a complete entity and edge set and never mutated —
// re-indexing produces a new Snapshot, and readers holding the old one
// keep a consistent view until they drop it.
type Snapshot struct {
	// Generation is the monotonically increasing index-run number.
	Generation uint64

	entities map[string]*entity.Entity
	edges    []Edge
	forward  map[string][]Neighbor
	reverse  map[string][]Neighbor

	byKind     map[entity.Kind]int
	byLanguage map[entity.Language]int
	externals  int
}

// NewSnapshot builds a snapshot from a complete entity and edge set.
// Construction is O(E); adjacency lists are sorted so that every
// derived query over the same snapshot is deterministic.
//
// Every edge endpoint must exist in the entity set. An edge naming an
// unknown key is a build error, not a runtime surprise: ingestion is
// responsible for materializing sentinel entities first.
func NewSnapshot(generation uint64, entities []*entity.Entity, edges []Edge) (*Snapshot, error) {
	s := &Snapshot{
		Generation: generation,
		entities:   make(map[string]*entity.Entity, len(entities)),
		edges:      make([]Edge, len(edges)),
		forward:    make(map[string][]Neighbor),
		reverse:    make(map[string][]Neighbor),
		byKind:     make(map[entity.Kind]int),
		byLanguage: make(map[entity.Language]int),
	}

	for _, e := range entities {
		s.entities[e.Key.ID()] = e
		s.byKind[e.Key.Kind]++
		s.byLanguage[e.Key.Language]++
		if e.External {
			s.externals++
		}
	}

	copy(s.edges, edges)
	for _, edge := range s.edges {
		srcID := edge.Source.ID()
		tgtID := edge.Target.ID()
		if _, ok := s.entities[srcID]; !ok {
			return nil, fmt.Errorf("edge source %s: %w", srcID, ErrEntityNotFound)
		}
		if _, ok := s.entities[tgtID]; !ok {
			return nil, fmt.Errorf("edge target %s: %w", tgtID, ErrEntityNotFound)
		}
		// Coupling edges are analytical, not structural. Keeping them
		// out of the adjacency maps means traversal and in-degree
		// ranking see the dependency graph only.
		if edge.Kind == EdgeCoupledWith {
			continue
		}
		s.forward[srcID] = append(s.forward[srcID], Neighbor{Key: edge.Target, Kind: edge.Kind})
		s.reverse[tgtID] = append(s.reverse[tgtID], Neighbor{Key: edge.Source, Kind: edge.Kind})
	}

	for _, adj := range []map[string][]Neighbor{s.forward, s.reverse} {
		for id := range adj {
			ns := adj[id]
			sort.Slice(ns, func(i, j int) bool {
				if ns[i].Key.ID() != ns[j].Key.ID() {
					return ns[i].Key.ID() < ns[j].Key.ID()
				}
				return ns[i].Kind < ns[j].Kind
			})
		}
	}

	return s, nil
}

// Entity returns the entity for the given key, or ErrEntityNotFound.
func (s *Snapshot) Entity(key entity.Key) (*entity.Entity, error) {
	e, ok := s.entities[key.ID()]
	if !ok {
		return nil, ErrEntityNotFound
	}
	return e, nil
}

// Contains reports whether the key exists in the snapshot.
func (s *Snapshot) Contains(key entity.Key) bool {
	_, ok := s.entities[key.ID()]
	return ok
}

// Entities returns all entities matching the optional kind and language
// filters, sorted by key. Empty filter values match everything.
func (s *Snapshot) Entities(kind entity.Kind, lang entity.Language) []*entity.Entity {
	result := make([]*entity.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if kind != "" && e.Key.Kind != kind {
			continue
		}
		if lang != "" && e.Key.Language != lang {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key.ID() < result[j].Key.ID()
	})
	return result
}

// Edges returns all edges in the snapshot in insertion order.
func (s *Snapshot) Edges() []Edge {
	return s.edges
}

// Forward returns the forward adjacency entries (dependencies) of the
// given key, or ErrEntityNotFound if the key is absent. An isolated
// entity yields an empty slice and no error.
func (s *Snapshot) Forward(key entity.Key) ([]Neighbor, error) {
	if !s.Contains(key) {
		return nil, ErrEntityNotFound
	}
	return s.forward[key.ID()], nil
}

// Reverse returns the reverse adjacency entries (dependents) of the
// given key, or ErrEntityNotFound if the key is absent.
func (s *Snapshot) Reverse(key entity.Key) ([]Neighbor, error) {
	if !s.Contains(key) {
		return nil, ErrEntityNotFound
	}
	return s.reverse[key.ID()], nil
}

// InDegree returns the number of inbound edges for the key, counting
// zero for keys without reverse entries.
func (s *Snapshot) InDegree(key entity.Key) int {
	return len(s.reverse[key.ID()])
}

// EntityCount returns the number of entities.
func (s *Snapshot) EntityCount() int {
	return len(s.entities)
}

// EdgeCount returns the number of edges.
func (s *Snapshot) EdgeCount() int {
	return len(s.edges)
}

// ExternalCount returns the number of sentinel (external) entities.
func (s *Snapshot) ExternalCount() int {
	return s.externals
}

// CountByKind returns the entity count per kind.
func (s *Snapshot) CountByKind() map[entity.Kind]int {
	out := make(map[entity.Kind]int, len(s.byKind))
	for k, v := range s.byKind {
		out[k] = v
	}
	return out
}

// CountByLanguage returns the entity count per language.
func (s *Snapshot) CountByLanguage() map[entity.Language]int {
	out := make(map[entity.Language]int, len(s.byLanguage))
	for k, v := range s.byLanguage {
		out[k] = v
	}
	return out
}
