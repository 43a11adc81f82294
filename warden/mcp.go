package warden

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cookiewall/idgen"
	"github.com/hazyhaar/cookiewall/kit"
)

// RegisterMCP registers the cookiewall tools on an MCP server.
func (w *Warden) RegisterMCP(srv *mcp.Server) {
	w.registerInspectTool(srv)
	w.registerAnalyzeTool(srv)
	w.registerHistoryTool(srv)
	w.registerExportTool(srv)
	w.registerStatsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeInto returns a decoder that unmarshals the tool arguments into a
// fresh T and tags the call with a request ID.
func decodeInto[T any]() func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r := new(T)
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, r); err != nil {
				return nil, err
			}
		}
		id := idgen.New()
		return &kit.MCPDecodeResult{
			Request: r,
			EnrichCtx: func(ctx context.Context) context.Context {
				return kit.WithRequestID(ctx, id)
			},
		}, nil
	}
}

func (w *Warden) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	kit.RegisterMCPTool(srv, tool, kit.Chain(kit.Logging(w.logger, tool.Name))(endpoint), decode)
}

// --- inspect ---

func (w *Warden) registerInspectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "cookiewall_inspect",
		Description: "Load a page, classify its cookies, detect consent banners and tracking scripts. With decline=true, select the reject option of the consent banner.",
		InputSchema: inputSchema(map[string]any{
			"url":     map[string]any{"type": "string", "description": "Page URL (http or https)"},
			"decline": map[string]any{"type": "boolean", "description": "Decline the consent banner after analysis"},
			"static":  map[string]any{"type": "boolean", "description": "Skip the browser and inspect the raw HTTP response"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*inspectRequest)
		return w.Inspect(ctx, r.URL, InspectOptions{Decline: r.Decline, Static: r.Static})
	}
	w.register(srv, tool, endpoint, decodeInto[inspectRequest]())
}

// --- analyze ---

func (w *Warden) registerAnalyzeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "cookiewall_analyze",
		Description: "Analyze a page from its raw HTTP response only: Set-Cookie headers and static markup. Nothing is clicked.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Page URL (http or https)"},
		}, []string{"url"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		return w.AnalyzeStatic(ctx, req.(*inspectRequest).URL)
	}
	w.register(srv, tool, endpoint, decodeInto[inspectRequest]())
}

// --- history ---

type historyRequest struct {
	Domain string `json:"domain,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (w *Warden) registerHistoryTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "cookiewall_history",
		Description: "List stored page analyses, newest first. With domain, return that domain's full analysis.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Return the full analysis of this domain"},
			"limit":  map[string]any{"type": "integer", "description": "Max results (default 50)"},
		}, nil),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*historyRequest)
		if r.Domain != "" {
			return w.Analysis(ctx, r.Domain)
		}
		if r.Limit <= 0 {
			r.Limit = 50
		}
		return w.History(ctx, r.Limit)
	}
	w.register(srv, tool, endpoint, decodeInto[historyRequest]())
}

// --- export ---

type emptyRequest struct{}

func (w *Warden) registerExportTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "cookiewall_export",
		Description: "Export the current settings and every stored analysis with summary totals.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return w.Export(ctx)
	}
	w.register(srv, tool, endpoint, decodeInto[emptyRequest]())
}

// --- stats ---

func (w *Warden) registerStatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "cookiewall_stats",
		Description: "Usage counters: sites analyzed, cookies blocked, banners declined, trackers blocked.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	endpoint := func(ctx context.Context, _ any) (any, error) {
		return w.Stats(ctx)
	}
	w.register(srv, tool, endpoint, decodeInto[emptyRequest]())
}
