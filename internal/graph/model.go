// Package graph provides the dependency graph data model for Lattice.
//
// It defines the directed edge types between code entities (calls,
// imports, implements, etc.) and the immutable Snapshot that holds one
// complete build of the entity/edge graph together with its derived
// adjacency indexes.
package graph

import (
	"github.com/latticegraph/lattice/internal/entity"
)

// EdgeKind represents the type of relationship between entities.
type EdgeKind string

const (
	EdgeCalls       EdgeKind = "calls"
	EdgeImports     EdgeKind = "imports"
	EdgeImplements  EdgeKind = "implements"
	EdgeExtends     EdgeKind = "extends"
	EdgeUsesType    EdgeKind = "uses_type"
	EdgeContains    EdgeKind = "contains"
	EdgeCoupledWith EdgeKind = "coupled_with"
)

// Edge is a directed, typed relation between two entity keys.
//
// Weight and CoChanges are populated only for coupled_with edges, where
// Weight carries the co-change strength computed from commit history.
type Edge struct {
	Source entity.Key `json:"source"`
	Target entity.Key `json:"target"`
	Kind   EdgeKind   `json:"kind"`

	Weight    float64 `json:"weight,omitempty"`
	CoChanges int     `json:"co_changes,omitempty"`
}

// Neighbor is one adjacency entry: the entity on the far side of an
// edge plus the edge kind that connects it.
type Neighbor struct {
	Key  entity.Key `json:"key"`
	Kind EdgeKind   `json:"kind"`
}
