// Package cmd provides CLI command implementations for lattice.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/latticegraph/lattice/internal/ingest"
	"github.com/latticegraph/lattice/internal/query"
	"github.com/latticegraph/lattice/internal/storage"
	"github.com/latticegraph/lattice/internal/traverse"
	"github.com/latticegraph/lattice/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

const dataDirName = ".lattice"

// IndexCmd builds a snapshot from extractor records.
type IndexCmd struct {
	Records string `arg:"" help:"Extractor record file (NDJSON), or '-' for stdin"`
	Repo    string `default:"." help:"Repository path for temporal coupling analysis"`
	NoGit   bool   `help:"Skip git history analysis"`
}

// Run executes the index command.
func (c *IndexCmd) Run() error {
	ctx := context.Background()
	repoPath, err := filepath.Abs(c.Repo)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	var records io.Reader
	if c.Records == "-" {
		records = os.Stdin
	} else {
		f, err := os.Open(c.Records)
		if err != nil {
			return fmt.Errorf("opening records: %w", err)
		}
		defer f.Close()
		records = f
	}

	color.Green("Indexing into %s", filepath.Join(repoPath, dataDirName))

	dataDir := filepath.Join(repoPath, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating %s directory: %w", dataDirName, err)
	}

	store := storage.NewBadgerStore()
	if err := store.Initialize(filepath.Join(dataDir, "badger"), false); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	gitPath := repoPath
	if c.NoGit {
		gitPath = ""
	}

	start := time.Now()
	_, stats, err := ingest.Index(ctx, store, records, gitPath)
	if err != nil {
		return fmt.Errorf("indexing: %w", err)
	}

	meta := map[string]any{
		"version":    Version,
		"name":       filepath.Base(repoPath),
		"path":       repoPath,
		"generation": stats.Generation,
		"stats": map[string]any{
			"records":        stats.Records,
			"entities":       stats.Entities,
			"edges":          stats.Edges,
			"coupling_edges": stats.CouplingEdges,
		},
		"indexed_at": time.Now().UTC().Format(time.RFC3339),
	}
	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	if err := os.WriteFile(filepath.Join(dataDir, "meta.json"), metaJSON, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}

	color.Green("\n✓ Indexing complete")
	fmt.Printf("  Generation:     %d\n", stats.Generation)
	fmt.Printf("  Records:        %d\n", stats.Records)
	fmt.Printf("  Entities:       %d\n", stats.Entities)
	fmt.Printf("  Edges:          %d\n", stats.Edges)
	fmt.Printf("  Coupling edges: %d\n", stats.CouplingEdges)
	fmt.Printf("  Duration:       %.2fs\n", time.Since(start).Seconds())

	return nil
}

// SearchCmd fuzzy-searches entity names.
type SearchCmd struct {
	Query string `arg:"" help:"Search query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	result := engine.Search(c.Query, c.Limit)
	if result.Total == 0 {
		fmt.Println("No results found")
		return nil
	}

	fmt.Printf("%d match(es), showing %d\n", result.Total, len(result.Matches))
	for i, m := range result.Matches {
		fmt.Printf("\n%d. %s (%s)\n", i+1, m.Entity.Key.Name, m.Entity.Key.Kind)
		fmt.Printf("   Key:   %s\n", m.Entity.Key)
		fmt.Printf("   Score: %.3f\n", m.Score)
	}
	return nil
}

// CallersCmd lists the entities depending on a given entity.
type CallersCmd struct {
	Key string `arg:"" help:"Entity key"`
}

// Run executes the callers command.
func (c *CallersCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	callers, err := engine.Callers(c.Key)
	if err != nil {
		return err
	}
	printRelated("Callers", callers)
	return nil
}

// CalleesCmd lists the entities a given entity depends on.
type CalleesCmd struct {
	Key string `arg:"" help:"Entity key"`
}

// Run executes the callees command.
func (c *CalleesCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	callees, err := engine.Callees(c.Key)
	if err != nil {
		return err
	}
	printRelated("Callees", callees)
	return nil
}

// ImpactCmd shows the blast radius of changing an entity.
type ImpactCmd struct {
	Key  string `arg:"" help:"Entity key"`
	Hops int    `short:"d" default:"3" help:"Maximum hop distance"`
}

// Run executes the impact command.
func (c *ImpactCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := engine.BlastRadius(c.Key, c.Hops)
	if err != nil {
		return err
	}

	color.Yellow("Blast radius of %s", result.Source)
	fmt.Printf("Total affected: %d entities within %d hop(s)\n", result.TotalAffected, c.Hops)
	for _, hop := range result.ByHop {
		fmt.Printf("\nHop %d: %d entities\n", hop.Hop, hop.Count)
		for _, e := range hop.Entities {
			fmt.Printf("  %s\n", e.Key)
		}
		if hop.Count > len(hop.Entities) {
			fmt.Printf("  ... and %d more\n", hop.Count-len(hop.Entities))
		}
	}
	return nil
}

// HotspotsCmd lists the most depended-upon entities.
type HotspotsCmd struct {
	Top int `short:"n" default:"10" help:"How many entities to show"`
}

// Run executes the hotspots command.
func (c *HotspotsCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	hotspots, err := engine.Hotspots(c.Top)
	if err != nil {
		return err
	}
	if len(hotspots) == 0 {
		fmt.Println("No entities indexed")
		return nil
	}

	for i, h := range hotspots {
		fmt.Printf("%2d. %-40s in-degree %d\n", i+1, h.Entity.Key.Name, h.InDegree)
		fmt.Printf("    %s\n", h.Entity.Key)
	}
	return nil
}

// CyclesCmd detects circular dependencies.
type CyclesCmd struct{}

// Run executes the cycles command.
func (c *CyclesCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	result := engine.Cycles()
	if !result.HasCycles {
		color.Green("No circular dependencies found")
		return nil
	}

	color.Red("%d circular dependency group(s)", result.CycleCount)
	for i, cycle := range result.Cycles {
		fmt.Printf("\nCycle %d (%d entities):\n", i+1, len(cycle))
		for _, key := range cycle {
			fmt.Printf("  %s\n", key)
		}
	}
	return nil
}

// ClustersCmd shows semantic clusters of related entities.
type ClustersCmd struct{}

// Run executes the clusters command.
func (c *ClustersCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	clusters := engine.Clusters()
	if len(clusters) == 0 {
		fmt.Println("No clusters found")
		return nil
	}

	for _, cl := range clusters {
		fmt.Printf("\nCluster %d: %d entities (%s, %s)\n", cl.ID, cl.Size, cl.Language, cl.Module)
		for _, member := range cl.Members {
			fmt.Printf("  %s\n", member)
		}
	}
	return nil
}

// ContextCmd selects budget-constrained context around a focus entity.
type ContextCmd struct {
	Key    string `arg:"" help:"Focus entity key"`
	Tokens int    `short:"t" default:"2000" help:"Token budget"`
}

// Run executes the context command.
func (c *ContextCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := engine.SmartContext(c.Key, c.Tokens)
	if err != nil {
		return err
	}

	color.Yellow("Context for %s", result.Focus)
	fmt.Printf("Included %d entities, %d/%d tokens\n", result.EntitiesIncluded, result.TokensUsed, result.Budget)
	for _, item := range result.Included {
		fmt.Printf("  %-14s score %.2f  %s\n", item.Relevance, item.Score, item.Entity.Key)
	}
	return nil
}

// CouplingCmd shows temporal coupling partners of an entity's file.
type CouplingCmd struct {
	Key string `arg:"" help:"Entity key"`
}

// Run executes the coupling command.
func (c *CouplingCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	partners, err := engine.TemporalCoupling(c.Key)
	if err != nil {
		return err
	}
	if len(partners) == 0 {
		fmt.Println("No temporal coupling found")
		return nil
	}

	for _, p := range partners {
		fmt.Printf("%.2f  %s (%d co-changes)\n", p.Strength, p.Entity.Key.Path, p.CoChanges)
	}
	return nil
}

// StatsCmd prints snapshot statistics.
type StatsCmd struct {
	JSON bool `help:"Output as JSON"`
}

// Run executes the stats command.
func (c *StatsCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	stats := engine.Stats()
	if c.JSON {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Generation:  %d\n", stats.Generation)
	fmt.Printf("Entities:    %d (%d external)\n", stats.Entities, stats.External)
	fmt.Printf("Edges:       %d\n", stats.Edges)
	fmt.Println("By kind:")
	for kind, count := range stats.ByKind {
		fmt.Printf("  %-12s %d\n", kind, count)
	}
	fmt.Println("By language:")
	for lang, count := range stats.ByLanguage {
		fmt.Printf("  %-12s %d\n", lang, count)
	}
	return nil
}

// StatusCmd shows index status for the current repository.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run() error {
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	metaPath := filepath.Join(repoPath, dataDirName, "meta.json")
	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no index found at %s. Run 'lattice index' first", repoPath)
		}
		return fmt.Errorf("reading meta.json: %w", err)
	}

	var meta map[string]any
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return fmt.Errorf("parsing meta.json: %w", err)
	}

	fmt.Printf("Index status for %s\n", repoPath)
	if version, ok := meta["version"].(string); ok {
		fmt.Printf("  Version:        %s\n", version)
	}
	if indexedAt, ok := meta["indexed_at"].(string); ok {
		fmt.Printf("  Last indexed:   %s\n", indexedAt)
	}
	if gen, ok := meta["generation"].(float64); ok {
		fmt.Printf("  Generation:     %.0f\n", gen)
	}
	if stats, ok := meta["stats"].(map[string]any); ok {
		if entities, ok := stats["entities"].(float64); ok {
			fmt.Printf("  Entities:       %.0f\n", entities)
		}
		if edges, ok := stats["edges"].(float64); ok {
			fmt.Printf("  Edges:          %.0f\n", edges)
		}
	}
	return nil
}

// CleanCmd deletes the index for the current repository.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	repoPath, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	dataDir := filepath.Join(repoPath, dataDirName)
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return fmt.Errorf("no index found at %s. Nothing to clean", repoPath)
	}

	if !c.Force {
		fmt.Printf("Delete index at %s? [y/N] ", dataDir)
		var response string
		_, _ = fmt.Scanln(&response)
		if !strings.EqualFold(response, "y") {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dataDir); err != nil {
		return fmt.Errorf("deleting index: %w", err)
	}

	color.Green("Deleted %s", dataDir)
	return nil
}

// MCPCmd starts the MCP server on stdio.
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run() error {
	engine, closeFn, err := loadEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	// No output to stderr here, stdio carries JSON-RPC only.
	return server.NewServer(engine).Run(context.Background(), os.Stdin, os.Stdout)
}

// ServeCmd starts the query server with optional live re-indexing.
type ServeCmd struct {
	Plain   bool   `help:"Serve the plain JSON envelope protocol instead of MCP"`
	Watch   bool   `short:"w" help:"Rebuild when the repository changes"`
	Records string `help:"Extractor record file to re-read on rebuild (required with --watch)"`
}

// Run executes the serve command.
func (c *ServeCmd) Run() error {
	ctx := context.Background()
	if c.Watch && c.Records == "" {
		return fmt.Errorf("--watch requires --records")
	}

	// Watch mode keeps the store writable so rebuilds can commit new
	// generations through the same handle.
	engine, store, closeFn, err := loadEngineMode(!c.Watch)
	if err != nil {
		return err
	}
	defer closeFn()

	srv := server.NewServer(engine)

	if c.Watch {
		repoPath, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}

		rebuild := func(ctx context.Context) error {
			f, err := os.Open(c.Records)
			if err != nil {
				return fmt.Errorf("opening records: %w", err)
			}
			defer f.Close()

			snap, _, err := ingest.Index(ctx, store, f, repoPath)
			if err != nil {
				return err
			}
			engine.Swap(snap)
			return nil
		}

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := ingest.Watch(watchCtx, repoPath, rebuild); err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
			}
		}()
		fmt.Fprintln(os.Stderr, "File watching enabled")
	}

	if c.Plain {
		fmt.Fprintln(os.Stderr, "Serving plain JSON protocol on stdio")
		return srv.RunPlain(ctx, os.Stdin, os.Stdout)
	}
	return srv.Run(ctx, os.Stdin, os.Stdout)
}

func printRelated(label string, related []traverse.Related) {
	if len(related) == 0 {
		fmt.Printf("%s: none\n", label)
		return
	}
	fmt.Printf("%s: %d\n", label, len(related))
	for _, r := range related {
		fmt.Printf("  [%s] %s\n", r.Kind, r.Entity.Key)
	}
}

func loadEngine() (*query.Engine, func(), error) {
	engine, _, closeFn, err := loadEngineMode(true)
	return engine, closeFn, err
}

func loadEngineMode(readOnly bool) (*query.Engine, *storage.BadgerStore, func(), error) {
	repoPath, err := os.Getwd()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("getting working directory: %w", err)
	}

	dbPath := filepath.Join(repoPath, dataDirName, "badger")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, nil, fmt.Errorf("no index found at %s. Run 'lattice index' first", repoPath)
	}

	store := storage.NewBadgerStore()
	if err := store.Initialize(dbPath, readOnly); err != nil {
		return nil, nil, nil, fmt.Errorf("initializing storage: %w", err)
	}

	engine, err := query.NewEngine(context.Background(), store)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return engine, store, func() { _ = store.Close() }, nil
}

// CLI is the root command tree.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`

	// Commands
	Index    IndexCmd    `cmd:"" help:"Build a snapshot from extractor records"`
	Search   SearchCmd   `cmd:"" help:"Fuzzy search entity names"`
	Callers  CallersCmd  `cmd:"" help:"List entities depending on an entity"`
	Callees  CalleesCmd  `cmd:"" help:"List entities an entity depends on"`
	Impact   ImpactCmd   `cmd:"" help:"Show blast radius of changing an entity"`
	Hotspots HotspotsCmd `cmd:"" help:"List the most depended-upon entities"`
	Cycles   CyclesCmd   `cmd:"" help:"Detect circular dependencies"`
	Clusters ClustersCmd `cmd:"" help:"Show semantic clusters"`
	Context  ContextCmd  `cmd:"" help:"Select context within a token budget"`
	Coupling CouplingCmd `cmd:"" help:"Show temporal coupling partners"`
	Stats    StatsCmd    `cmd:"" help:"Show snapshot statistics"`
	Status   StatusCmd   `cmd:"" help:"Show index status for current repo"`
	Clean    CleanCmd    `cmd:"" help:"Delete index for current repository"`
	MCP      MCPCmd      `cmd:"" help:"Start MCP server (stdio transport)"`
	Serve    ServeCmd    `cmd:"" help:"Start query server with optional watch mode"`
}

// NewCLI creates a CLI with default values.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("lattice"),
		kong.Description("Code dependency graph engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	return kongCtx.Run()
}
