package traverse

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// CycleResult reports dependency cycles over a whole snapshot.
type CycleResult struct {
	HasCycles  bool           `json:"has_cycles"`
	CycleCount int            `json:"cycle_count"`
	Cycles     [][]entity.Key `json:"cycles"`
}

// DetectCycles computes strongly connected components over the full
// directed graph using Tarjan's algorithm (O(V+E)). Any component with
// more than one member, or a single member carrying a self-loop, is a
// cycle. Output ordering is deterministic: members sorted within each
// cycle, cycles sorted by their first member.
func DetectCycles(s *graph.Snapshot) *CycleResult {
	entities := s.Entities("", "")
	ids := make([]string, 0, len(entities))
	keys := make(map[string]entity.Key, len(entities))
	for _, e := range entities {
		id := e.Key.ID()
		ids = append(ids, id)
		keys[id] = e.Key
	}

	selfLoop := make(map[string]bool)
	succ := make(map[string][]string)
	for _, edge := range s.Edges() {
		// Coupling edges are analytical and never part of the
		// dependency graph, matching the adjacency index.
		if edge.Kind == graph.EdgeCoupledWith {
			continue
		}
		src, tgt := edge.Source.ID(), edge.Target.ID()
		if src == tgt {
			selfLoop[src] = true
		}
		succ[src] = append(succ[src], tgt)
	}

	t := &tarjan{
		succ:    succ,
		index:   make(map[string]int, len(ids)),
		lowlink: make(map[string]int, len(ids)),
		onStack: make(map[string]bool, len(ids)),
	}
	for _, id := range ids {
		if _, seen := t.index[id]; !seen {
			t.strongConnect(id)
		}
	}

	result := &CycleResult{Cycles: [][]entity.Key{}}
	for _, comp := range t.components {
		if len(comp) < 2 && !selfLoop[comp[0]] {
			continue
		}
		cycle := make([]entity.Key, 0, len(comp))
		for _, id := range comp {
			cycle = append(cycle, keys[id])
		}
		sort.Slice(cycle, func(i, j int) bool { return cycle[i].ID() < cycle[j].ID() })
		result.Cycles = append(result.Cycles, cycle)
	}

	sort.Slice(result.Cycles, func(i, j int) bool {
		return result.Cycles[i][0].ID() < result.Cycles[j][0].ID()
	})
	result.CycleCount = len(result.Cycles)
	result.HasCycles = result.CycleCount > 0
	return result
}

// tarjan holds the iterative Tarjan SCC state. The traversal is
// implemented with an explicit frame stack so pathological graphs do
// not overflow the goroutine stack.
type tarjan struct {
	succ       map[string][]string
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	counter    int
	components [][]string
}

type tarjanFrame struct {
	id   string
	next int
}

func (t *tarjan) strongConnect(root string) {
	frames := []tarjanFrame{{id: root}}
	t.open(root)

	for len(frames) > 0 {
		f := &frames[len(frames)-1]
		advanced := false

		for f.next < len(t.succ[f.id]) {
			w := t.succ[f.id][f.next]
			f.next++
			if _, seen := t.index[w]; !seen {
				t.open(w)
				frames = append(frames, tarjanFrame{id: w})
				advanced = true
				break
			}
			if t.onStack[w] && t.index[w] < t.lowlink[f.id] {
				t.lowlink[f.id] = t.index[w]
			}
		}
		if advanced {
			continue
		}

		// f.id is fully explored.
		if t.lowlink[f.id] == t.index[f.id] {
			var comp []string
			for {
				w := t.stack[len(t.stack)-1]
				t.stack = t.stack[:len(t.stack)-1]
				t.onStack[w] = false
				comp = append(comp, w)
				if w == f.id {
					break
				}
			}
			t.components = append(t.components, comp)
		}

		frames = frames[:len(frames)-1]
		if len(frames) > 0 {
			parent := &frames[len(frames)-1]
			if t.lowlink[f.id] < t.lowlink[parent.id] {
				t.lowlink[parent.id] = t.lowlink[f.id]
			}
		}
	}
}

func (t *tarjan) open(id string) {
	t.index[id] = t.counter
	t.lowlink[id] = t.counter
	t.counter++
	t.stack = append(t.stack, id)
	t.onStack[id] = true
}
