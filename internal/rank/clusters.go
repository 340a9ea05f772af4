package rank

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// DefaultClusterThreshold is the minimum edge count between two
// same-language, same-module entities before proximity alone groups
// them.
const DefaultClusterThreshold = 2

// Cluster is one group of related entities.
type Cluster struct {
	ID       int          `json:"id"`
	Size     int          `json:"size"`
	Language string       `json:"language"`
	Module   string       `json:"module"`
	Members  []entity.Key `json:"members"`
}

// Clusters groups entities by edge density and co-location. Two
// entities land in one cluster when they are defined in the same file,
// when they are mutually connected (edges in both directions), or when
// they share language and module and the edge count between them meets
// the threshold. The result is deterministic for a given snapshot and
// threshold: union operations are applied in sorted edge order and
// clusters are reported sorted by size, then by their first member.
//
// External sentinel entities are excluded — they have no location and
// would otherwise glue unrelated clusters together through shared
// standard-library references.
func Clusters(s *graph.Snapshot, threshold int) []Cluster {
	if threshold <= 0 {
		threshold = DefaultClusterThreshold
	}

	var ents []*entity.Entity
	for _, e := range s.Entities("", "") {
		if !e.External {
			ents = append(ents, e)
		}
	}
	if len(ents) == 0 {
		return []Cluster{}
	}

	idx := make(map[string]int, len(ents))
	for i, e := range ents {
		idx[e.Key.ID()] = i
	}
	uf := newUnionFind(len(ents))

	// Same-file co-location.
	byFile := make(map[string][]int)
	for i, e := range ents {
		byFile[e.Key.Path] = append(byFile[e.Key.Path], i)
	}
	for _, members := range byFile {
		for i := 1; i < len(members); i++ {
			uf.union(members[0], members[i])
		}
	}

	// Pairwise edge counts and per-direction existence, keyed by the
	// ordered index pair. Sorted iteration keeps unions deterministic.
	type pair struct{ a, b int }
	counts := make(map[pair]int)
	lowToHigh := make(map[pair]bool)
	highToLow := make(map[pair]bool)
	for _, edge := range s.Edges() {
		src, okS := idx[edge.Source.ID()]
		tgt, okT := idx[edge.Target.ID()]
		if !okS || !okT || src == tgt {
			continue
		}
		p := pair{src, tgt}
		if src < tgt {
			lowToHigh[p] = true
		} else {
			p = pair{tgt, src}
			highToLow[p] = true
		}
		counts[p]++
	}

	pairs := make([]pair, 0, len(counts))
	for p := range counts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	for _, p := range pairs {
		ea, eb := ents[p.a], ents[p.b]
		mutual := lowToHigh[p] && highToLow[p]
		proximate := ea.Key.Language == eb.Key.Language &&
			ea.Module() == eb.Module() &&
			counts[p] >= threshold
		if mutual || proximate {
			uf.union(p.a, p.b)
		}
	}

	// Materialize clusters.
	groups := make(map[int][]int)
	for i := range ents {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	clusters := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		keys := make([]entity.Key, 0, len(members))
		langs := make(map[entity.Language]int)
		mods := make(map[string]int)
		for _, i := range members {
			keys = append(keys, ents[i].Key)
			langs[ents[i].Key.Language]++
			mods[ents[i].Module()]++
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].ID() < keys[j].ID() })
		clusters = append(clusters, Cluster{
			Size:     len(keys),
			Language: string(dominant(langs)),
			Module:   dominantString(mods),
			Members:  keys,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Members[0].ID() < clusters[j].Members[0].ID()
	})
	for i := range clusters {
		clusters[i].ID = i
	}
	return clusters
}

func dominant(counts map[entity.Language]int) entity.Language {
	var best entity.Language
	bestN := -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[entity.Language(k)] > bestN {
			best = entity.Language(k)
			bestN = counts[entity.Language(k)]
		}
	}
	return best
}

func dominantString(counts map[string]int) string {
	var best string
	bestN := -1
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestN {
			best = k
			bestN = counts[k]
		}
	}
	return best
}

// unionFind is a path-compressing disjoint set over integer indexes.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
