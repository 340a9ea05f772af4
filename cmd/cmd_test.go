package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRecords = `{"record":"entity","language":"go","kind":"function","name":"Parse","path":"parser/parse.go","start_line":1,"end_line":40}
{"record":"entity","language":"go","kind":"function","name":"Lex","path":"parser/lex.go","start_line":1,"end_line":30}
{"record":"edge","edge_kind":"calls","source":"go:function:Parse:parser_parse.go:1-40","target":"go:function:Lex:parser_lex.go:1-30"}
`

// writeIndex runs the index command against a fresh temp repo and
// chdirs into it so the query commands find the data directory.
func writeIndex(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	recordsPath := filepath.Join(tmpDir, "records.ndjson")
	require.NoError(t, os.WriteFile(recordsPath, []byte(testRecords), 0o644))

	cmd := &IndexCmd{Records: recordsPath, Repo: tmpDir, NoGit: true}
	require.NoError(t, cmd.Run())

	t.Chdir(tmpDir)
	return tmpDir
}

func TestIndexCmd_Run(t *testing.T) {
	tmpDir := writeIndex(t)

	// Data directory and meta.json exist.
	assert.DirExists(t, filepath.Join(tmpDir, ".lattice", "badger"))
	meta, err := os.ReadFile(filepath.Join(tmpDir, ".lattice", "meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"entities": 2`)
	assert.Contains(t, string(meta), `"generation": 1`)
}

func TestIndexCmd_MissingRecords(t *testing.T) {
	tmpDir := t.TempDir()
	cmd := &IndexCmd{Records: filepath.Join(tmpDir, "nope.ndjson"), Repo: tmpDir, NoGit: true}
	assert.Error(t, cmd.Run())
}

func TestQueryCommands_AfterIndex(t *testing.T) {
	writeIndex(t)

	t.Run("stats", func(t *testing.T) {
		cmd := &StatsCmd{}
		assert.NoError(t, cmd.Run())
	})

	t.Run("search", func(t *testing.T) {
		cmd := &SearchCmd{Query: "parse", Limit: 10}
		assert.NoError(t, cmd.Run())
	})

	t.Run("callers", func(t *testing.T) {
		cmd := &CallersCmd{Key: "go:function:Lex:parser_lex.go:1-30"}
		assert.NoError(t, cmd.Run())
	})

	t.Run("impact", func(t *testing.T) {
		cmd := &ImpactCmd{Key: "go:function:Lex:parser_lex.go:1-30", Hops: 3}
		assert.NoError(t, cmd.Run())
	})

	t.Run("impact rejects zero hops", func(t *testing.T) {
		cmd := &ImpactCmd{Key: "go:function:Lex:parser_lex.go:1-30", Hops: 0}
		assert.Error(t, cmd.Run())
	})

	t.Run("hotspots", func(t *testing.T) {
		cmd := &HotspotsCmd{Top: 5}
		assert.NoError(t, cmd.Run())
	})

	t.Run("cycles", func(t *testing.T) {
		cmd := &CyclesCmd{}
		assert.NoError(t, cmd.Run())
	})

	t.Run("context", func(t *testing.T) {
		cmd := &ContextCmd{Key: "go:function:Parse:parser_parse.go:1-40", Tokens: 1000}
		assert.NoError(t, cmd.Run())
	})

	t.Run("status", func(t *testing.T) {
		cmd := &StatusCmd{}
		assert.NoError(t, cmd.Run())
	})
}

func TestQueryCommands_WithoutIndex(t *testing.T) {
	t.Chdir(t.TempDir())

	assert.Error(t, (&StatsCmd{}).Run())
	assert.Error(t, (&SearchCmd{Query: "x", Limit: 5}).Run())
	assert.Error(t, (&StatusCmd{}).Run())
}

func TestCleanCmd_Run(t *testing.T) {
	tmpDir := writeIndex(t)

	cmd := &CleanCmd{Force: true}
	require.NoError(t, cmd.Run())
	assert.NoDirExists(t, filepath.Join(tmpDir, ".lattice"))

	// Nothing left to clean.
	assert.Error(t, cmd.Run())
}

func TestCLI_Parsing(t *testing.T) {
	cli := NewCLI()
	assert.NotNil(t, cli)
}
