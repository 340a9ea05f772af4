// Package rank implements connectivity ranking, fuzzy name search, and
// deterministic semantic clustering over a snapshot.
package rank

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Hotspot is an entity ranked by inbound edge count (total coupling).
type Hotspot struct {
	Entity   *entity.Entity `json:"entity"`
	InDegree int            `json:"in_degree"`
}

// Hotspots ranks entities by in-degree, descending, ties broken by
// lexical key order. External sentinel entities are valid candidates —
// a heavily referenced standard-library call is itself a coupling
// signal — and stay distinguishable through their External flag.
func Hotspots(s *graph.Snapshot, top int) []Hotspot {
	if top <= 0 {
		return nil
	}

	entities := s.Entities("", "")
	spots := make([]Hotspot, 0, len(entities))
	for _, e := range entities {
		spots = append(spots, Hotspot{Entity: e, InDegree: s.InDegree(e.Key)})
	}

	sort.SliceStable(spots, func(i, j int) bool {
		if spots[i].InDegree != spots[j].InDegree {
			return spots[i].InDegree > spots[j].InDegree
		}
		return spots[i].Entity.Key.ID() < spots[j].Entity.Key.ID()
	})

	if len(spots) > top {
		spots = spots[:top]
	}
	return spots
}
