package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

const (
	// Couplings weaker than this, or with fewer co-changes, are noise.
	minCouplingStrength = 0.3
	minCoChanges        = 3

	// History window for the co-change analysis.
	couplingWindow = 6 * 30 * 24 * time.Hour
)

// CommitFileSets reads the repository's recent history and returns,
// per commit, the set of files it touched. Empty when the path is not
// a git repository old enough to have history in the window.
func CommitFileSets(repoPath string) ([][]string, error) {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}

	since := time.Now().Add(-couplingWindow)
	iter, err := repo.Log(&git.LogOptions{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading log: %w", err)
	}
	defer iter.Close()

	var sets [][]string
	err = iter.ForEach(func(c *object.Commit) error {
		stats, err := c.Stats()
		if err != nil {
			// Merge and root commits without resolvable stats are
			// skipped rather than failing the whole analysis.
			return nil
		}
		files := make([]string, 0, len(stats))
		for _, st := range stats {
			files = append(files, st.Name)
		}
		if len(files) > 0 {
			sets = append(sets, files)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking log: %w", err)
	}
	return sets, nil
}

// CouplingEdges computes coupled_with edges from commit file sets.
// Each qualifying file pair yields one edge between the files'
// representative entities: strength is co_changes over the busier
// file's total changes, and pairs under the strength or co-change
// floors are dropped. Files with no indexed entity are ignored.
func CouplingEdges(entities []*entity.Entity, commits [][]string) []graph.Edge {
	reps := fileRepresentatives(entities)

	matrix := make(map[string]map[string]int)
	total := make(map[string]int)
	for _, files := range commits {
		for _, f := range files {
			total[f]++
		}
		for i := 0; i < len(files); i++ {
			for j := i + 1; j < len(files); j++ {
				a, b := files[i], files[j]
				if a > b {
					a, b = b, a
				}
				if matrix[a] == nil {
					matrix[a] = make(map[string]int)
				}
				matrix[a][b]++
			}
		}
	}

	var edges []graph.Edge
	for fileA, partners := range matrix {
		repA, ok := reps[fileA]
		if !ok {
			continue
		}
		for fileB, count := range partners {
			repB, ok := reps[fileB]
			if !ok {
				continue
			}
			strength := couplingStrength(count, total[fileA], total[fileB])
			if strength < minCouplingStrength || count < minCoChanges {
				continue
			}
			edges = append(edges, graph.Edge{
				Source:    repA,
				Target:    repB,
				Kind:      graph.EdgeCoupledWith,
				Weight:    strength,
				CoChanges: count,
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source.ID() != edges[j].Source.ID() {
			return edges[i].Source.ID() < edges[j].Source.ID()
		}
		return edges[i].Target.ID() < edges[j].Target.ID()
	})
	return edges
}

// fileRepresentatives picks one entity per file to anchor file-level
// coupling edges: the earliest-starting entity, ties broken by key.
func fileRepresentatives(entities []*entity.Entity) map[string]entity.Key {
	reps := make(map[string]entity.Key)
	for _, e := range entities {
		if e.External {
			continue
		}
		cur, ok := reps[e.Key.Path]
		if !ok {
			reps[e.Key.Path] = e.Key
			continue
		}
		if e.Key.StartLine < cur.StartLine ||
			(e.Key.StartLine == cur.StartLine && e.Key.ID() < cur.ID()) {
			reps[e.Key.Path] = e.Key
		}
	}
	return reps
}

// couplingStrength is co_changes over the busier file's total changes.
func couplingStrength(coChanges, totalA, totalB int) float64 {
	max := totalA
	if totalB > max {
		max = totalB
	}
	if max == 0 {
		return 0
	}
	return float64(coChanges) / float64(max)
}
