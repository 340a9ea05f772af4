// Package selector implements token-budget-constrained context
// selection: given a focus entity, it picks the most relevant related
// entities that fit a caller-supplied token budget, for consumption by
// token-limited clients.
package selector

import (
	"sort"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
	"github.com/latticegraph/lattice/internal/traverse"
)

// Relevance labels on selected entities.
const (
	RelevanceDirectCaller = "direct_caller"
	RelevanceDirectCallee = "direct_callee"
	RelevanceTransitive   = "transitive"
)

// Relevance scores. Direct callers outrank direct callees; transitive
// entities decay with depth down to a small positive floor so scores
// never go negative.
const (
	scoreDirectCaller = 1.0
	scoreDirectCallee = 0.95
	scoreFloor        = 0.05

	// maxTransitiveDepth bounds the transitive candidate expansion.
	maxTransitiveDepth = 4

	// itemOverheadTokens is the fixed per-item response framing cost
	// (JSON field names, score, relevance label) on top of the
	// rendered key.
	itemOverheadTokens = 64
)

// Selected is one accepted context entity.
type Selected struct {
	Entity    *entity.Entity `json:"entity"`
	Score     float64        `json:"score"`
	Relevance string         `json:"relevance"`
	Depth     int            `json:"depth"`
	Tokens    int            `json:"tokens"`
}

// Result is the outcome of a smart context selection.
type Result struct {
	Focus            entity.Key `json:"focus"`
	Budget           int        `json:"budget"`
	TokensUsed       int        `json:"tokens_used"`
	EntitiesIncluded int        `json:"entities_included"`
	Included         []Selected `json:"included"`
}

// EstimateTokens estimates the token cost of a string using the
// four-characters-per-token heuristic, rounding up.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// Cost estimates the token cost of including one entity in a context
// response.
func Cost(e *entity.Entity) int {
	return itemOverheadTokens + EstimateTokens(e.Key.String())
}

// transitiveScore decays 0.7 - 0.1*(depth-2), floored.
func transitiveScore(depth int) float64 {
	s := 0.7 - 0.1*float64(depth-2)
	if s < scoreFloor {
		return scoreFloor
	}
	return s
}

// Select produces the ordered context list for the focus entity within
// the token budget.
//
// Candidates: direct callers (score 1.0), direct callees (0.95), and
// entities reached transitively through reverse edges at depth d >= 2
// (0.7 - 0.1*(d-2), floored). Selection is greedy by descending score,
// ties broken by shallower depth then lexical key order; a candidate
// that would overflow the remaining budget is skipped, not fatal, and
// selection continues with the next candidate.
func Select(s *graph.Snapshot, focus entity.Key, budget int) (*Result, error) {
	if !s.Contains(focus) {
		return nil, graph.ErrEntityNotFound
	}

	result := &Result{Focus: focus, Budget: budget, Included: []Selected{}}
	if budget <= 0 {
		return result, nil
	}

	type candidate struct {
		key       entity.Key
		score     float64
		relevance string
		depth     int
	}

	seen := map[string]bool{focus.ID(): true}
	var candidates []candidate

	callers, err := s.Reverse(focus)
	if err != nil {
		return nil, err
	}
	for _, n := range callers {
		if seen[n.Key.ID()] {
			continue
		}
		seen[n.Key.ID()] = true
		candidates = append(candidates, candidate{n.Key, scoreDirectCaller, RelevanceDirectCaller, 1})
	}

	callees, _ := s.Forward(focus)
	for _, n := range callees {
		if seen[n.Key.ID()] {
			continue
		}
		seen[n.Key.ID()] = true
		candidates = append(candidates, candidate{n.Key, scoreDirectCallee, RelevanceDirectCallee, 1})
	}

	levels, _ := traverse.Frontier(s, focus, maxTransitiveDepth, true)
	for i, level := range levels {
		depth := i + 1
		if depth < 2 {
			continue
		}
		for _, k := range level {
			if seen[k.ID()] {
				continue
			}
			seen[k.ID()] = true
			candidates = append(candidates, candidate{k, transitiveScore(depth), RelevanceTransitive, depth})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].depth != candidates[j].depth {
			return candidates[i].depth < candidates[j].depth
		}
		return candidates[i].key.ID() < candidates[j].key.ID()
	})

	for _, c := range candidates {
		e, err := s.Entity(c.key)
		if err != nil {
			continue
		}
		cost := Cost(e)
		if result.TokensUsed+cost > budget {
			continue // skip, keep trying cheaper candidates
		}
		result.Included = append(result.Included, Selected{
			Entity:    e,
			Score:     c.score,
			Relevance: c.relevance,
			Depth:     c.depth,
			Tokens:    cost,
		})
		result.TokensUsed += cost
	}

	result.EntitiesIncluded = len(result.Included)
	return result, nil
}
