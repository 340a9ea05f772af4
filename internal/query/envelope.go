package query

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/latticegraph/lattice/internal/graph"
	"github.com/latticegraph/lattice/internal/selector"
	"github.com/latticegraph/lattice/internal/storage"
)

// Error codes carried in the response envelope.
const (
	CodeNotFound         = "not_found"
	CodeInvalidParameter = "invalid_parameter"
	CodeStorageError     = "storage_error"
)

// Request is one operation invocation. Params not used by the endpoint
// are ignored.
type Request struct {
	Endpoint string `json:"endpoint"`
	Key      string `json:"key,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Focus    string `json:"focus,omitempty"`
	Query    string `json:"query,omitempty"`
	Q        string `json:"q,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Type     string `json:"entity_type,omitempty"`
	Language string `json:"language,omitempty"`
	Hops     int    `json:"hops,omitempty"`
	Top      int    `json:"top,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Tokens   int    `json:"tokens,omitempty"`
}

// Response is the uniform envelope every operation answers with.
// Tokens is the estimated token footprint of the serialized payload,
// present on success only.
type Response struct {
	Success  bool            `json:"success"`
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data,omitempty"`
	Tokens   int             `json:"tokens"`
	Error    string          `json:"error,omitempty"`
	Code     string          `json:"code,omitempty"`
}

// Endpoints recognized by Dispatch.
const (
	EndpointHealth           = "health"
	EndpointStats            = "stats"
	EndpointListEntities     = "list_entities"
	EndpointEntity           = "entity"
	EndpointSearch           = "search"
	EndpointListEdges        = "list_edges"
	EndpointCallers          = "callers"
	EndpointCallees          = "callees"
	EndpointBlastRadius      = "blast_radius"
	EndpointCycles           = "cycles"
	EndpointHotspots         = "hotspots"
	EndpointClusters         = "clusters"
	EndpointSmartContext     = "smart_context"
	EndpointTemporalCoupling = "temporal_coupling"
)

type healthData struct {
	Status     string `json:"status"`
	Generation uint64 `json:"generation"`
	Entities   int    `json:"entities"`
}

// Dispatch routes a request to its operation and wraps the outcome in
// the response envelope. Unknown endpoints are invalid parameters.
func (e *Engine) Dispatch(req Request) Response {
	var (
		data any
		err  error
	)

	// The documented parameter names are "entity" for traversal
	// endpoints and "focus" for smart context; "key" works everywhere.
	key := req.Key
	if key == "" {
		key = req.Entity
	}
	if key == "" {
		key = req.Focus
	}

	switch req.Endpoint {
	case EndpointHealth:
		s := e.Snapshot()
		data = healthData{Status: "ok", Generation: s.Generation, Entities: s.EntityCount()}
	case EndpointStats:
		data = e.Stats()
	case EndpointListEntities:
		kind := req.Kind
		if kind == "" {
			kind = req.Type
		}
		data = e.ListEntities(kind, req.Language)
	case EndpointEntity:
		data, err = e.Entity(key)
	case EndpointSearch:
		q := req.Query
		if q == "" {
			q = req.Q
		}
		data = e.Search(q, req.Limit)
	case EndpointListEdges:
		data = e.ListEdges()
	case EndpointCallers:
		data, err = e.Callers(key)
	case EndpointCallees:
		data, err = e.Callees(key)
	case EndpointBlastRadius:
		data, err = e.BlastRadius(key, req.Hops)
	case EndpointCycles:
		data = e.Cycles()
	case EndpointHotspots:
		data, err = e.Hotspots(req.Top)
	case EndpointClusters:
		data = e.Clusters()
	case EndpointSmartContext:
		data, err = e.SmartContext(key, req.Tokens)
	case EndpointTemporalCoupling:
		data, err = e.TemporalCoupling(key)
	default:
		err = fmt.Errorf("unknown endpoint %q: %w", req.Endpoint, ErrInvalidParameter)
	}

	if err != nil {
		return errorResponse(req.Endpoint, err)
	}
	return successResponse(req.Endpoint, data)
}

func successResponse(endpoint string, data any) Response {
	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse(endpoint, fmt.Errorf("encoding response: %w", err))
	}
	return Response{
		Success:  true,
		Endpoint: endpoint,
		Data:     raw,
		Tokens:   selector.EstimateTokens(string(raw)),
	}
}

func errorResponse(endpoint string, err error) Response {
	code := CodeStorageError
	switch {
	case errors.Is(err, graph.ErrEntityNotFound):
		code = CodeNotFound
	case errors.Is(err, ErrInvalidParameter):
		code = CodeInvalidParameter
	case errors.Is(err, storage.ErrStorage):
		code = CodeStorageError
	}
	return Response{
		Success:  false,
		Endpoint: endpoint,
		Error:    err.Error(),
		Code:     code,
	}
}
