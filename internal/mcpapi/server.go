package mcpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/metrics"
)

// Server answers JSON-RPC 2.0 requests on behalf of a single
// principal. MCP clients (an LLM runtime, typically) don't carry
// per-call credentials the way REST/gRPC/WS clients do, so the
// principal this server acts as is fixed at construction, the way a
// service account would be.
type Server struct {
	svc       *dispatch.Service
	principal *coretypes.Principal
}

func NewServer(svc *dispatch.Service, principal *coretypes.Principal) *Server {
	return &Server{svc: svc, principal: principal}
}

// ServeStdio runs the JSON-RPC loop over stdin/stdout, one request
// per line, until the context is cancelled or stdin is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		resp := s.handle(ctx, line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			log.Error().Err(err).Msg("mcpapi: failed to encode stdio response")
		}
	}
	return scanner.Err()
}

// ServeHTTP runs the same JSON-RPC handling over HTTP POST, for
// clients that talk MCP-over-HTTP rather than stdio.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	resp := s.handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	json.NewEncoder(w).Encode(resp)
}

// handle decodes one request and dispatches it by method, returning
// nil for a notification (no id) whose method it does not handle;
// handled methods answer whether or not an id is present.
func (s *Server) handle(ctx context.Context, raw []byte) *Response {
	start := time.Now()

	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := errorResponse(nil, codeParseError, "parse error", nil)
		metrics.RecordRequest("mcp", "malformed", "error", time.Since(start))
		return resp
	}

	resp := s.handleRequest(ctx, req)

	status := "ok"
	if resp != nil && resp.Error != nil {
		status = "error"
	}
	metrics.RecordRequest("mcp", req.Method, status, time.Since(start))
	return resp
}

func (s *Server) handleRequest(ctx context.Context, req Request) *Response {
	if req.JSONRPC != jsonRPCVersion {
		return errorResponse(req.ID, codeInvalidRequest, "jsonrpc must be \"2.0\"", nil)
	}

	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]any{"name": "browserctl", "version": "1.0.0"},
			"capabilities":    map[string]any{"tools": map[string]any{}, "resources": map[string]any{}},
		})
	case "tools/list":
		return resultResponse(req.ID, map[string]any{"tools": catalog()})
	case "tools/call":
		return s.handleToolCall(ctx, req)
	case "resources/list":
		return resultResponse(req.ID, map[string]any{"resources": resourceCatalog()})
	case "resources/read":
		return s.handleResourceRead(req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method, nil)
	}
}

type resourceReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourceRead(req Request) *Response {
	var params resourceReadParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, codeInvalidParams, "invalid params", nil)
		}
	}
	if params.URI != "api://catalog" {
		return errorResponse(req.ID, codeInvalidParams, "unknown resource uri", nil)
	}
	body, _ := json.Marshal(catalog())
	return resultResponse(req.ID, map[string]any{
		"contents": []map[string]any{{"uri": params.URI, "mimeType": "application/json", "text": string(body)}},
	})
}
