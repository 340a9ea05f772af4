package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
)

// Record is one line of extractor output. Extractors emit entity
// records for every construct they index and edge records for every
// reference between constructs, keyed by the wire key form.
type Record struct {
	Record string `json:"record"`

	// Entity fields.
	Language  string `json:"language,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`

	// Edge fields.
	EdgeKind string  `json:"edge_kind,omitempty"`
	Source   string  `json:"source,omitempty"`
	Target   string  `json:"target,omitempty"`
	Weight   float64 `json:"weight,omitempty"`
}

// Scanner buffer sized for minified single-line records from large
// generated files.
const maxRecordBytes = 1 << 20

// ReadNDJSON streams newline-delimited records into the builder and
// returns how many it applied. A malformed line aborts the read with
// its line number; blank lines are skipped.
func ReadNDJSON(r io.Reader, b *Builder) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	applied := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := apply(&rec, b); err != nil {
			return applied, fmt.Errorf("line %d: %w", lineNo, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("reading records: %w", err)
	}
	return applied, nil
}

func apply(rec *Record, b *Builder) error {
	switch rec.Record {
	case "entity":
		if rec.Name == "" || rec.Path == "" {
			return fmt.Errorf("entity record missing name or path")
		}
		b.PutEntities(entity.New(entity.Key{
			Language:  entity.NormalizeLanguage(rec.Language),
			Kind:      entity.NormalizeKind(rec.Kind),
			Name:      rec.Name,
			Path:      rec.Path,
			StartLine: rec.StartLine,
			EndLine:   rec.EndLine,
		}))
	case "edge":
		src, err := entity.ParseKey(rec.Source)
		if err != nil {
			return fmt.Errorf("edge source: %w", err)
		}
		tgt, err := entity.ParseKey(rec.Target)
		if err != nil {
			return fmt.Errorf("edge target: %w", err)
		}
		kind := graph.EdgeKind(rec.EdgeKind)
		if kind == "" {
			kind = graph.EdgeCalls
		}
		b.PutEdges(graph.Edge{Source: src, Target: tgt, Kind: kind, Weight: rec.Weight})
	default:
		return fmt.Errorf("unknown record type %q", rec.Record)
	}
	return nil
}
