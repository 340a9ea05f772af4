// Package traverse implements graph traversal queries over a snapshot:
// single-hop caller/callee lookups, multi-hop blast radius expansion,
// and whole-graph cycle detection.
package traverse

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Related is one entity reached by a traversal, with the edge kind
// that connects it to the query entity.
type Related struct {
	Entity *entity.Entity `json:"entity"`
	Kind   graph.EdgeKind `json:"relation"`
}

// Callers returns the entities with an edge into the given key
// (single reverse hop). Returns graph.ErrEntityNotFound if the key is
// absent; an entity with no inbound edges yields an empty slice.
func Callers(s *graph.Snapshot, key entity.Key) ([]Related, error) {
	neighbors, err := s.Reverse(key)
	if err != nil {
		return nil, err
	}
	return resolve(s, neighbors), nil
}

// Callees returns the entities the given key has an edge into
// (single forward hop).
func Callees(s *graph.Snapshot, key entity.Key) ([]Related, error) {
	neighbors, err := s.Forward(key)
	if err != nil {
		return nil, err
	}
	return resolve(s, neighbors), nil
}

func resolve(s *graph.Snapshot, neighbors []graph.Neighbor) []Related {
	out := make([]Related, 0, len(neighbors))
	for _, n := range neighbors {
		e, err := s.Entity(n.Key)
		if err != nil {
			continue
		}
		out = append(out, Related{Entity: e, Kind: n.Kind})
	}
	return out
}

// maxHopRepresentatives caps the example entity list reported per hop.
const maxHopRepresentatives = 10

// HopResult is the per-hop breakdown of a blast radius expansion.
type HopResult struct {
	Hop      int              `json:"hop"`
	Count    int              `json:"count"`
	Entities []*entity.Entity `json:"entities"`
}

// BlastRadiusResult reports the transitive impact of changing an entity.
type BlastRadiusResult struct {
	Source        entity.Key  `json:"source"`
	Hops          int         `json:"hops"`
	TotalAffected int         `json:"total_affected"`
	ByHop         []HopResult `json:"by_hop"`
}

// BlastRadius expands breadth-first from key through reverse edges
// ("what breaks if this changes" follows callers, transitively) for up
// to hops levels. Each hop strictly increases distance by one; an
// entity first seen at an earlier hop is never re-counted later.
//
// hops <= 0 yields an empty result for any entity. The key itself is
// never part of its own blast radius unless reached through a cycle.
func BlastRadius(s *graph.Snapshot, key entity.Key, hops int) (*BlastRadiusResult, error) {
	if !s.Contains(key) {
		return nil, graph.ErrEntityNotFound
	}

	result := &BlastRadiusResult{Source: key, Hops: hops, ByHop: []HopResult{}}
	if hops <= 0 {
		return result, nil
	}

	visited := map[string]bool{key.ID(): true}
	frontier := []entity.Key{key}

	for hop := 1; hop <= hops && len(frontier) > 0; hop++ {
		var next []entity.Key
		for _, cur := range frontier {
			neighbors, err := s.Reverse(cur)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				id := n.Key.ID()
				if visited[id] {
					continue
				}
				visited[id] = true
				next = append(next, n.Key)
			}
		}
		if len(next) == 0 {
			break
		}

		sort.Slice(next, func(i, j int) bool { return next[i].ID() < next[j].ID() })

		hr := HopResult{Hop: hop, Count: len(next), Entities: []*entity.Entity{}}
		for _, k := range next {
			if len(hr.Entities) >= maxHopRepresentatives {
				break
			}
			if e, err := s.Entity(k); err == nil {
				hr.Entities = append(hr.Entities, e)
			}
		}
		result.ByHop = append(result.ByHop, hr)
		result.TotalAffected += len(next)
		frontier = next
	}

	return result, nil
}

// Frontier returns the distinct keys at each hop distance from key up
// to maxDepth, following reverse edges when reverse is true and forward
// edges otherwise. Index i of the result holds the keys at distance
// i+1. Used by the smart context selector for depth-scored candidates.
func Frontier(s *graph.Snapshot, key entity.Key, maxDepth int, reverse bool) ([][]entity.Key, error) {
	if !s.Contains(key) {
		return nil, graph.ErrEntityNotFound
	}

	visited := map[string]bool{key.ID(): true}
	frontier := []entity.Key{key}
	var levels [][]entity.Key

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []entity.Key
		for _, cur := range frontier {
			var neighbors []graph.Neighbor
			var err error
			if reverse {
				neighbors, err = s.Reverse(cur)
			} else {
				neighbors, err = s.Forward(cur)
			}
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				id := n.Key.ID()
				if visited[id] {
					continue
				}
				visited[id] = true
				next = append(next, n.Key)
			}
		}
		if len(next) == 0 {
			break
		}
		sort.Slice(next, func(i, j int) bool { return next[i].ID() < next[j].ID() })
		levels = append(levels, next)
		frontier = next
	}

	return levels, nil
}
