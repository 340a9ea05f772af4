// Package ingest turns extractor output and git history into graph
// snapshots. Extraction itself (parsing source into entities and
// edges) happens outside this process; ingest consumes the record
// stream, resolves references, layers on temporal coupling, and
// commits the result.
package ingest

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Builder accumulates entities and edges across record batches and
// produces a consistent input for a snapshot commit.
type Builder struct {
	entities map[string]*entity.Entity
	edges    []graph.Edge
}

func NewBuilder() *Builder {
	return &Builder{entities: make(map[string]*entity.Entity)}
}

// PutEntities adds entities to the batch. A later put with the same
// key wins, so re-extracting a file just overwrites its entities.
func (b *Builder) PutEntities(ents ...*entity.Entity) {
	for _, e := range ents {
		b.entities[e.Key.ID()] = e
	}
}

// PutEdges adds edges to the batch. Endpoints need not be known yet;
// Build resolves them.
func (b *Builder) PutEdges(edges ...graph.Edge) {
	b.edges = append(b.edges, edges...)
}

// EntityCount reports the number of distinct entities staged so far.
func (b *Builder) EntityCount() int { return len(b.entities) }

// EdgeCount reports the number of edges staged so far.
func (b *Builder) EdgeCount() int { return len(b.edges) }

// Build materializes the batch. Edge endpoints that no staged entity
// covers become external sentinel entities, so every reference the
// extractor saw stays navigable even when its definition was never
// indexed. Output order is deterministic.
func (b *Builder) Build() ([]*entity.Entity, []graph.Edge) {
	// Unresolved endpoints are rewritten to their sentinel form so the
	// snapshot never sees a dangling reference.
	remap := make(map[string]entity.Key)
	resolveEndpoint := func(key entity.Key) entity.Key {
		id := key.ID()
		if _, ok := b.entities[id]; ok {
			return key
		}
		if mapped, ok := remap[id]; ok {
			return mapped
		}
		sentinel := key
		if !sentinel.External() {
			sentinel = entity.ExternalKey(key.Language, key.Kind, key.Name)
		}
		if _, ok := b.entities[sentinel.ID()]; !ok {
			b.entities[sentinel.ID()] = entity.New(sentinel)
		}
		remap[id] = sentinel
		return sentinel
	}

	edges := make([]graph.Edge, len(b.edges))
	for i, edge := range b.edges {
		edge.Source = resolveEndpoint(edge.Source)
		edge.Target = resolveEndpoint(edge.Target)
		edges[i] = edge
	}

	ents := make([]*entity.Entity, 0, len(b.entities))
	for _, e := range b.entities {
		ents = append(ents, e)
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].Key.ID() < ents[j].Key.ID() })
	return ents, edges
}
