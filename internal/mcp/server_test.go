package mcp

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/actions"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/dispatch"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
)

type testEnv struct {
	server  *Server
	browser *browser.MemoryBrowser
	exec    *actions.Executor
	store   *profile.MemoryStore
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.Name = "test-server"
	cfg.Server.Version = "1.0.0"

	b := browser.NewMemoryBrowser(
		browser.Window{ID: 1, Tabs: []browser.Tab{
			{ID: "A", Title: "Gmail - Inbox", URL: "https://a"},
			{ID: "B", Title: "Gmail - Spam", URL: "https://spam"},
		}},
		browser.Window{ID: 2, Tabs: []browser.Tab{
			{ID: "C", Title: "Calendar", URL: "https://calendar.google.com/"},
		}},
	)
	store := profile.NewMemoryStore("default")
	exec := actions.NewExecutor(b)
	d := dispatch.New(b, profile.NewGate(store, "default"), exec)

	server, err := NewServer(cfg, d, store)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return &testEnv{server: server, browser: b, exec: exec, store: store}
}

func TestNewServer(t *testing.T) {
	t.Run("registers all tools", func(t *testing.T) {
		env := setupTestServer(t)
		for _, name := range []string{"focus-tab", "focus-window", "list-tabs", "help", "set-profile"} {
			if _, ok := env.server.tools[name]; !ok {
				t.Errorf("expected tool %q to be registered", name)
			}
		}
	})

	t.Run("requires dispatcher", func(t *testing.T) {
		if _, err := NewServer(config.DefaultConfig(), nil, profile.NewMemoryStore("x")); err == nil {
			t.Error("expected error without dispatcher")
		}
	})
}

func TestFocusTabTool(t *testing.T) {
	env := setupTestServer(t)
	result, err := env.server.ExecuteTool(context.Background(), "focus-tab", map[string]interface{}{
		"title":   "Gmail*",
		"not_url": "spam",
	})
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	env.exec.Wait()

	reply, ok := result.(dispatch.Reply)
	if !ok {
		t.Fatalf("expected dispatch.Reply, got %T", result)
	}
	if reply.Reply != actions.FocusedTab {
		t.Errorf("expected %q, got %v", actions.FocusedTab, reply.Reply)
	}
	if env.browser.ActiveTab(1) != "A" {
		t.Errorf("expected tab A active, got %q", env.browser.ActiveTab(1))
	}
}

func TestFocusWindowTool(t *testing.T) {
	env := setupTestServer(t)
	result, err := env.server.ExecuteTool(context.Background(), "focus-window", map[string]interface{}{
		"url": "*calendar*",
	})
	if err != nil {
		t.Fatalf("ExecuteTool failed: %v", err)
	}
	env.exec.Wait()

	if reply := result.(dispatch.Reply); reply.Reply != actions.FocusedWindow {
		t.Errorf("expected %q, got %v", actions.FocusedWindow, reply.Reply)
	}
	if env.browser.FocusedWindow() != 2 {
		t.Errorf("expected window 2 focused, got %d", env.browser.FocusedWindow())
	}
}

func TestDescriptorArguments(t *testing.T) {
	env := setupTestServer(t)

	t.Run("non-string value", func(t *testing.T) {
		_, err := env.server.ExecuteTool(context.Background(), "focus-tab", map[string]interface{}{"title": 7})
		if err == nil {
			t.Error("expected error for numeric title")
		}
	})

	t.Run("empty descriptor", func(t *testing.T) {
		result, err := env.server.ExecuteTool(context.Background(), "focus-tab", map[string]interface{}{})
		if err != nil {
			t.Fatalf("ExecuteTool failed: %v", err)
		}
		s, _ := result.(dispatch.Reply).Reply.(string)
		if !strings.Contains(s, "invalid search descriptor") {
			t.Errorf("expected validation reply, got %q", s)
		}
		if len(env.browser.Calls()) != 0 {
			t.Errorf("expected no browser calls, got %+v", env.browser.Calls())
		}
	})
}

func TestListTabsAndHelp(t *testing.T) {
	env := setupTestServer(t)

	result, err := env.server.ExecuteTool(context.Background(), "list-tabs", nil)
	if err != nil {
		t.Fatalf("list-tabs failed: %v", err)
	}
	all, ok := result.(dispatch.Reply).Reply.(actions.AllTabs)
	if !ok {
		t.Fatalf("expected AllTabs payload, got %T", result.(dispatch.Reply).Reply)
	}
	if len(all.Windows) != 3 {
		t.Errorf("expected 3 tabs, got %d", len(all.Windows))
	}

	result, err = env.server.ExecuteTool(context.Background(), "help", nil)
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	if _, ok := result.(dispatch.Reply).Reply.(actions.HelpPayload); !ok {
		t.Errorf("expected help payload, got %T", result.(dispatch.Reply).Reply)
	}
}

func TestSetProfileTool(t *testing.T) {
	env := setupTestServer(t)

	if _, err := env.server.ExecuteTool(context.Background(), "set-profile", map[string]interface{}{}); err == nil {
		t.Error("expected error without profile")
	}

	result, err := env.server.ExecuteTool(context.Background(), "set-profile", map[string]interface{}{"profile": "work"})
	if err != nil {
		t.Fatalf("set-profile failed: %v", err)
	}
	got := result.(map[string]interface{})
	if got["previous"] != "default" || got["profile"] != "work" {
		t.Errorf("unexpected result %v", got)
	}

	// The gate now lets work-only requests through.
	result, err = env.server.ExecuteTool(context.Background(), "focus-tab", map[string]interface{}{
		"title":   "Calendar",
		"profile": "work",
	})
	if err != nil {
		t.Fatalf("focus-tab failed: %v", err)
	}
	env.exec.Wait()
	if reply := result.(dispatch.Reply); reply.Reply != actions.FocusedTab || reply.Profile != "work" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	env := setupTestServer(t)
	if _, err := env.server.ExecuteTool(context.Background(), "close-tab", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestWrapTool(t *testing.T) {
	env := setupTestServer(t)

	t.Run("success payload", func(t *testing.T) {
		handler := env.server.wrapTool(env.server.tools["help"])
		req := mcp.CallToolRequest{}
		req.Params.Name = "help"
		res, err := handler(context.Background(), req)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if res.IsError {
			t.Fatalf("expected success, got %+v", res)
		}
		text, ok := res.Content[0].(mcp.TextContent)
		if !ok {
			t.Fatalf("expected text content, got %T", res.Content[0])
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
			t.Fatalf("payload is not JSON: %v", err)
		}
		if decoded["profile"] != "default" {
			t.Errorf("expected profile in payload, got %v", decoded)
		}
	})

	t.Run("error result", func(t *testing.T) {
		handler := env.server.wrapTool(env.server.tools["set-profile"])
		res, err := handler(context.Background(), mcp.CallToolRequest{})
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if !res.IsError {
			t.Error("expected IsError for a failed tool")
		}
	})
}

func TestMarshalToolPayloadFallback(t *testing.T) {
	payload := marshalToolPayload("test-tool", map[string]interface{}{
		"bad": math.NaN(),
	})
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload should always be valid JSON: %v", err)
	}
	if success, _ := decoded["success"].(bool); success {
		t.Fatalf("expected success=false fallback payload, got %v", decoded)
	}
	if decoded["error"] == nil {
		t.Fatalf("expected fallback payload to include error, got %v", decoded)
	}
}

func TestResources(t *testing.T) {
	env := setupTestServer(t)
	read := func(t *testing.T, uri string, handler func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error)) map[string]interface{} {
		t.Helper()
		req := mcp.ReadResourceRequest{}
		req.Params.URI = uri
		contents, err := handler(context.Background(), req)
		if err != nil {
			t.Fatalf("read %s: %v", uri, err)
		}
		text := contents[0].(mcp.TextResourceContents)
		if text.URI != uri || text.MIMEType != resourceMIMEJSON {
			t.Errorf("unexpected resource metadata %+v", text)
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &decoded); err != nil {
			t.Fatalf("resource is not JSON: %v", err)
		}
		return decoded
	}

	t.Run("about", func(t *testing.T) {
		got := read(t, aboutURI, env.server.handleAboutResource)
		if got["name"] != "test-server" || got["protocol"] == nil {
			t.Errorf("unexpected about payload %v", got)
		}
	})

	t.Run("profile", func(t *testing.T) {
		_ = env.store.Set(context.Background(), "home")
		got := read(t, profileURI, env.server.handleProfileResource)
		if got["profile"] != "home" {
			t.Errorf("expected profile home, got %v", got["profile"])
		}
	})

	t.Run("tabs", func(t *testing.T) {
		got := read(t, tabsURI, env.server.handleTabsResource)
		reply, _ := got["reply"].(map[string]interface{})
		if tabs, _ := reply["windows"].([]interface{}); len(tabs) != 3 {
			t.Errorf("expected 3 tabs, got %v", got)
		}
	})
}
