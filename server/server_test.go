package server

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticegraph/lattice/internal/entity"
	"github.com/latticegraph/lattice/internal/graph"
	"github.com/latticegraph/lattice/internal/query"
	"github.com/latticegraph/lattice/internal/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	ents := []*entity.Entity{
		entity.New(entity.Key{Language: entity.LangGo, Kind: entity.KindFunction, Name: "Parse", Path: "parser/parse.go", StartLine: 1, EndLine: 40}),
		entity.New(entity.Key{Language: entity.LangGo, Kind: entity.KindFunction, Name: "Lex", Path: "parser/lex.go", StartLine: 1, EndLine: 30}),
	}
	edges := []graph.Edge{
		{Source: ents[0].Key, Target: ents[1].Key, Kind: graph.EdgeCalls},
	}

	store := storage.NewMemoryStore()
	require.NoError(t, store.Initialize("", false))
	_, err := store.CommitSnapshot(context.Background(), ents, edges)
	require.NoError(t, err)

	eng, err := query.NewEngine(context.Background(), store)
	require.NoError(t, err)
	return NewServer(eng)
}

func TestListTools_CoversAllEndpoints(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	tools := s.ListTools()
	assert.Len(t, tools, 14)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
		assert.NotEmpty(t, tool.Description)
		require.NotNil(t, tool.InputSchema)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	for _, expected := range []string{
		"lattice_health", "lattice_stats", "lattice_list_entities", "lattice_entity",
		"lattice_search", "lattice_list_edges", "lattice_callers", "lattice_callees",
		"lattice_blast_radius", "lattice_cycles", "lattice_hotspots", "lattice_clusters",
		"lattice_smart_context", "lattice_temporal_coupling",
	} {
		assert.True(t, names[expected], "missing tool %s", expected)
	}
}

func TestCallTool(t *testing.T) {
	t.Parallel()
	s := testServer(t)
	ctx := context.Background()

	t.Run("stats", func(t *testing.T) {
		t.Parallel()
		out, err := s.CallTool(ctx, "lattice_stats", map[string]any{})
		require.NoError(t, err)

		var resp query.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, "stats", resp.Endpoint)
	})

	t.Run("callers with key", func(t *testing.T) {
		t.Parallel()
		out, err := s.CallTool(ctx, "lattice_callers", map[string]any{
			"key": "go:function:Lex:parser_lex.go:1-30",
		})
		require.NoError(t, err)

		var resp query.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.True(t, resp.Success)
		assert.Contains(t, string(resp.Data), "Parse")
	})

	t.Run("error envelope passes through", func(t *testing.T) {
		t.Parallel()
		out, err := s.CallTool(ctx, "lattice_blast_radius", map[string]any{
			"key":  "go:function:Lex:parser_lex.go:1-30",
			"hops": float64(0),
		})
		require.NoError(t, err)

		var resp query.Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, query.CodeInvalidParameter, resp.Code)
	})

	t.Run("unknown tool", func(t *testing.T) {
		t.Parallel()
		_, err := s.CallTool(ctx, "bogus", nil)
		assert.Error(t, err)
	})
}

func TestReadResource(t *testing.T) {
	t.Parallel()
	s := testServer(t)
	ctx := context.Background()

	overview, err := s.ReadResource(ctx, "lattice://overview")
	require.NoError(t, err)
	assert.Contains(t, overview, `"entities":2`)

	keyFormat, err := s.ReadResource(ctx, "lattice://key-format")
	require.NoError(t, err)
	assert.Contains(t, keyFormat, "unknown:0-0")

	_, err = s.ReadResource(ctx, "lattice://nope")
	assert.Error(t, err)
}

func TestRun_InitializeAndToolsList(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	input := `{"jsonrpc":"2.0","id":1,"method":"initialize"}
{"jsonrpc":"2.0","id":2,"method":"tools/list"}
{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"lattice_health","arguments":{}}}
`
	var out bytes.Buffer
	err := s.Run(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var initResp map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &initResp))
	result := initResp["result"].(map[string]any)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])

	var listResp map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &listResp))
	tools := listResp["result"].(map[string]any)["tools"].([]any)
	assert.Len(t, tools, 14)

	var callResp map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &callResp))
	content := callResp["result"].(map[string]any)["content"].([]any)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(t, text, `"success":true`)
}

func TestRunPlain(t *testing.T) {
	t.Parallel()
	s := testServer(t)

	input := `{"endpoint":"health"}
{"endpoint":"entity","key":"go:function:Missing:x.go:1-2"}
not json
`
	var out bytes.Buffer
	err := s.RunPlain(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)

	var first, second, third query.Response
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.True(t, first.Success)
	assert.Equal(t, "health", first.Endpoint)

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.False(t, second.Success)
	assert.Equal(t, query.CodeNotFound, second.Code)

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &third))
	assert.False(t, third.Success)
	assert.Equal(t, query.CodeInvalidParameter, third.Code)
}
