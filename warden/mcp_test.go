package warden

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/cookiewall/store"
)

var testImpl = &mcp.Implementation{Name: "cookiewall-test", Version: "0.1.0"}

// mcpSession starts a warden, registers its MCP tools, and returns a
// connected client session.
func mcpSession(t *testing.T) (*Warden, *mcp.ClientSession) {
	t.Helper()
	w := testWarden(t)

	srv := mcp.NewServer(testImpl, nil)
	w.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() {
		_ = srv.Run(ctx, serverT)
	}()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return w, session
}

// callTool invokes a tool and returns the JSON text from the first TextContent.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_ListTools(t *testing.T) {
	_, session := mcpSession(t)
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"cookiewall_inspect": false, "cookiewall_analyze": false,
		"cookiewall_history": false, "cookiewall_export": false, "cookiewall_stats": false,
	}
	for _, tool := range res.Tools {
		want[tool.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestMCP_InspectHistoryExport(t *testing.T) {
	_, session := mcpSession(t)
	site := testSite(t)

	var insp Inspection
	text := callTool(t, session, "cookiewall_inspect", map[string]any{"url": site.URL, "static": true})
	if err := json.Unmarshal([]byte(text), &insp); err != nil {
		t.Fatal(err)
	}
	if insp.Mode != ModeStatic || insp.Analysis == nil {
		t.Fatalf("inspect: got %s", text)
	}

	var list []store.Summary
	json.Unmarshal([]byte(callTool(t, session, "cookiewall_history", map[string]any{})), &list)
	if len(list) != 1 {
		t.Errorf("history: got %+v", list)
	}

	var exp store.Export
	json.Unmarshal([]byte(callTool(t, session, "cookiewall_export", map[string]any{})), &exp)
	if exp.Summary.TotalSitesAnalyzed != 1 {
		t.Errorf("export summary: got %+v", exp.Summary)
	}

	var st store.Stats
	json.Unmarshal([]byte(callTool(t, session, "cookiewall_stats", map[string]any{})), &st)
	if st.SitesAnalyzed != 1 {
		t.Errorf("stats: got %+v", st)
	}
}

func TestMCP_InvalidURLIsToolError(t *testing.T) {
	_, session := mcpSession(t)
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "cookiewall_analyze",
		Arguments: map[string]any{"url": "gopher://x"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error")
	}
}
