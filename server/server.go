// Package server exposes the query engine over MCP (Model Context
// Protocol) on stdio, and over a plain newline-delimited JSON protocol
// for non-MCP clients.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/latticegraph/lattice/internal/query"
)

const (
	serverName    = "lattice"
	serverVersion = "0.1.0"
)

// Server serves graph queries over stdio.
type Server struct {
	engine *query.Engine
	server *mcp.Server
}

// Tool describes one MCP tool.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Resource describes one MCP resource.
type Resource struct {
	URI         string
	Name        string
	Description string
	MimeType    string
}

// NewServer creates a server over the given engine.
func NewServer(engine *query.Engine) *Server {
	s := &Server{engine: engine}
	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)
	return s
}

func keySchema(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc + " (entity key, e.g. go:function:ParseConfig:internal_config_config.go:10-40)"}
}

// ListTools returns all registered tools. Every query endpoint is one
// tool so MCP clients see the full operation surface.
func (s *Server) ListTools() []Tool {
	return []Tool{
		{
			Name:        "lattice_health",
			Description: "Check engine health and the served snapshot generation.",
			InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		},
		{
			Name:        "lattice_stats",
			Description: "Snapshot statistics: entity, edge, and external counts broken down by kind and language.",
			InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		},
		{
			Name:        "lattice_list_entities",
			Description: "List indexed entities, optionally filtered by kind and language.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"kind":     {Type: "string", Description: "Entity kind filter (function, struct, class, ...)"},
					"language": {Type: "string", Description: "Language filter (go, python, rust, ...)"},
				},
			},
		},
		{
			Name:        "lattice_entity",
			Description: "Look up a single entity by its key.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"key": keySchema("Entity to look up")},
				Required:   []string{"key"},
			},
		},
		{
			Name:        "lattice_search",
			Description: "Fuzzy search over entity names. Returns ranked matches and the total match count.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Search query text"},
					"limit": {Type: "integer", Description: "Maximum number of results"},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "lattice_list_edges",
			Description: "List all edges in the snapshot.",
			InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		},
		{
			Name:        "lattice_callers",
			Description: "Entities that directly depend on the given entity.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"key": keySchema("Entity whose callers to list")},
				Required:   []string{"key"},
			},
		},
		{
			Name:        "lattice_callees",
			Description: "Entities the given entity directly depends on.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"key": keySchema("Entity whose callees to list")},
				Required:   []string{"key"},
			},
		},
		{
			Name:        "lattice_blast_radius",
			Description: "Blast radius analysis: everything transitively affected by changing the given entity, grouped by hop distance.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"key":  keySchema("Entity to analyze"),
					"hops": {Type: "integer", Description: "Maximum hop distance (must be positive)"},
				},
				Required: []string{"key", "hops"},
			},
		},
		{
			Name:        "lattice_cycles",
			Description: "Detect circular dependencies across the whole graph.",
			InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		},
		{
			Name:        "lattice_hotspots",
			Description: "Top entities by inbound coupling.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"top": {Type: "integer", Description: "How many entities to return (must be positive)"},
				},
				Required: []string{"top"},
			},
		},
		{
			Name:        "lattice_clusters",
			Description: "Deterministic semantic clusters of related entities.",
			InputSchema: &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}},
		},
		{
			Name:        "lattice_smart_context",
			Description: "Select the most relevant related entities for a focus entity within a token budget.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"key":    keySchema("Focus entity"),
					"tokens": {Type: "integer", Description: "Token budget (must be positive)"},
				},
				Required: []string{"key", "tokens"},
			},
		},
		{
			Name:        "lattice_temporal_coupling",
			Description: "Files that historically change together with the given entity's file, from git history.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"key": keySchema("Entity whose file to analyze")},
				Required:   []string{"key"},
			},
		},
	}
}

// ListResources returns all registered resources.
func (s *Server) ListResources() []Resource {
	return []Resource{
		{
			URI:         "lattice://overview",
			Name:        "Graph Overview",
			Description: "High-level statistics about the indexed dependency graph",
			MimeType:    "application/json",
		},
		{
			URI:         "lattice://key-format",
			Name:        "Entity Key Format",
			Description: "Description of the entity key wire format",
			MimeType:    "text/plain",
		},
	}
}

// CallTool executes a tool and returns the serialized response
// envelope as the tool's text content.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	const prefix = "lattice_"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	req := query.Request{Endpoint: name[len(prefix):]}
	req.Key, _ = args["key"].(string)
	req.Entity, _ = args["entity"].(string)
	req.Focus, _ = args["focus"].(string)
	req.Query, _ = args["query"].(string)
	req.Q, _ = args["q"].(string)
	req.Kind, _ = args["kind"].(string)
	req.Type, _ = args["entity_type"].(string)
	req.Language, _ = args["language"].(string)
	if v, ok := args["hops"].(float64); ok {
		req.Hops = int(v)
	}
	if v, ok := args["top"].(float64); ok {
		req.Top = int(v)
	}
	if v, ok := args["limit"].(float64); ok {
		req.Limit = int(v)
	}
	if v, ok := args["tokens"].(float64); ok {
		req.Tokens = int(v)
	}

	resp := s.engine.Dispatch(req)
	out, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (string, error) {
	switch uri {
	case "lattice://overview":
		out, err := json.Marshal(s.engine.Stats())
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "lattice://key-format":
		return "Entity keys have the form language:entity_type:name:path:start-end, " +
			"with path separators replaced by underscores. " +
			"External references use the sentinel form language:entity_type:name:unknown:0-0.", nil
	default:
		return "", fmt.Errorf("unknown resource: %s", uri)
	}
}

// Run serves MCP over stdio until EOF or context cancellation.
func (s *Server) Run(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)
	// MCP requires compact JSON, one message per line.

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req map[string]any
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}

		resp := s.handleRequest(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	}
}

// RunPlain serves the raw request/response envelope protocol: one
// query.Request per input line, one query.Response per output line.
func (s *Server) RunPlain(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	if stdin == nil || stdout == nil {
		return fmt.Errorf("stdin and stdout must not be nil")
	}

	reader := bufio.NewReader(stdin)
	encoder := json.NewEncoder(stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var req query.Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := encoder.Encode(query.Response{
				Success: false,
				Error:   err.Error(),
				Code:    query.CodeInvalidParameter,
			}); encErr != nil {
				return encErr
			}
			continue
		}

		if err := encoder.Encode(s.engine.Dispatch(req)); err != nil {
			return err
		}
	}
}

func (s *Server) handleRequest(ctx context.Context, req map[string]any) map[string]any {
	method, _ := req["method"].(string)
	id := req["id"]

	switch method {
	case "initialize":
		return s.handleInitialize(id)
	case "tools/list":
		return s.handleToolsList(id)
	case "tools/call":
		return s.handleToolsCall(ctx, id, req)
	case "resources/list":
		return s.handleResourcesList(id)
	case "resources/read":
		return s.handleResourcesRead(ctx, id, req)
	default:
		return errorResponse(id, -32601, "Method not found: "+method)
	}
}

func (s *Server) handleInitialize(id any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
			"capabilities": map[string]any{
				"tools":     map[string]any{"listChanged": false},
				"resources": map[string]any{"listChanged": false},
			},
		},
	}
}

func (s *Server) handleToolsList(id any) map[string]any {
	tools := s.ListTools()
	toolList := make([]map[string]any, len(tools))
	for i, tool := range tools {
		schema, _ := json.Marshal(tool.InputSchema)
		var schemaMap map[string]any
		json.Unmarshal(schema, &schemaMap)

		toolList[i] = map[string]any{
			"name":        tool.Name,
			"description": tool.Description,
			"inputSchema": schemaMap,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  map[string]any{"tools": toolList},
	}
}

func (s *Server) handleToolsCall(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	name, _ := params["name"].(string)
	args, _ := params["arguments"].(map[string]any)

	result, err := s.CallTool(ctx, name, args)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": result},
			},
		},
	}
}

func (s *Server) handleResourcesList(id any) map[string]any {
	resources := s.ListResources()
	resourceList := make([]map[string]any, len(resources))
	for i, res := range resources {
		resourceList[i] = map[string]any{
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MimeType,
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  map[string]any{"resources": resourceList},
	}
}

func (s *Server) handleResourcesRead(ctx context.Context, id any, req map[string]any) map[string]any {
	params, _ := req["params"].(map[string]any)
	if params == nil {
		return errorResponse(id, -32602, "Invalid params")
	}

	uri, _ := params["uri"].(string)

	content, err := s.ReadResource(ctx, uri)
	if err != nil {
		return errorResponse(id, -32000, err.Error())
	}

	mimeType := "text/plain"
	for _, res := range s.ListResources() {
		if res.URI == uri {
			mimeType = res.MimeType
		}
	}

	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result": map[string]any{
			"contents": []map[string]any{
				{"uri": uri, "mimeType": mimeType, "text": content},
			},
		},
	}
}

func errorResponse(id any, code int, message string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
}
