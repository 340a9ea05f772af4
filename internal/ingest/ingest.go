package ingest

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/latticegraph/lattice/internal/graph"
	"github.com/latticegraph/lattice/internal/storage"
)

// Stats describes one completed ingestion run.
type Stats struct {
	Generation    uint64
	Records       int
	Entities      int
	Edges         int
	CouplingEdges int
}

// Index runs one full ingestion: read extractor records, resolve
// references, layer temporal coupling from repoPath's git history when
// available, and commit everything as the new current snapshot.
// Returns the committed snapshot so callers can serve it without a
// second store read.
func Index(ctx context.Context, store storage.Store, records io.Reader, repoPath string) (*graph.Snapshot, *Stats, error) {
	b := NewBuilder()
	n, err := ReadNDJSON(records, b)
	if err != nil {
		return nil, nil, fmt.Errorf("reading extractor records: %w", err)
	}

	ents, edges := b.Build()
	stats := &Stats{Records: n, Entities: len(ents), Edges: len(edges)}

	if repoPath != "" {
		commits, err := CommitFileSets(repoPath)
		if err != nil {
			// Not every indexed tree is a git checkout. Coupling is
			// additive, so skip it and say so.
			fmt.Fprintf(os.Stderr, "Skipping temporal coupling: %v\n", err)
		} else {
			coupled := CouplingEdges(ents, commits)
			edges = append(edges, coupled...)
			stats.CouplingEdges = len(coupled)
			stats.Edges = len(edges)
		}
	}

	gen, err := store.CommitSnapshot(ctx, ents, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("committing snapshot: %w", err)
	}
	stats.Generation = gen

	snap, err := graph.NewSnapshot(gen, ents, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("building snapshot: %w", err)
	}
	return snap, stats, nil
}
