package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"
)

func strPtr(s string) *string { return &s }

func fixtureWindows() []Window {
	return []Window{
		{ID: 1, Tabs: []Tab{
			{ID: "a", Title: "Gmail - Inbox", URL: "https://mail.google.com/mail/u/0/#inbox"},
			{ID: "b", Title: "Calendar", URL: "https://calendar.google.com/"},
		}},
		{ID: 2, Type: "popup", Tabs: []Tab{
			{ID: "c", Title: "Gmail - Compose", URL: "https://mail.google.com/mail/u/0/#compose"},
		}},
		{ID: 3, Tabs: []Tab{
			{ID: "d", Title: "Gmail - Spam", URL: "https://mail.google.com/mail/u/0/#spam"},
		}},
	}
}

func TestQueryCompile(t *testing.T) {
	t.Run("star spans slashes", func(t *testing.T) {
		m, err := Query{URL: strPtr("https://mail.google.com/*")}.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if !m.Matches(Tab{URL: "https://mail.google.com/mail/u/0/#inbox"}, "") {
			t.Error("expected '*' to match across path separators")
		}
	})

	t.Run("window type defaults to normal", func(t *testing.T) {
		m, err := Query{}.Compile()
		if err != nil {
			t.Fatalf("compile: %v", err)
		}
		if !m.Matches(Tab{}, "normal") {
			t.Error("expected normal window to match")
		}
		if m.Matches(Tab{}, "popup") {
			t.Error("expected popup window to be excluded by default")
		}
	})
}

func TestFilterWindows(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"title glob", Query{Title: strPtr("Gmail*")}, []string{"a", "d"}},
		{"url glob", Query{URL: strPtr("*calendar*")}, []string{"b"}},
		{"popup windows", Query{Title: strPtr("Gmail*"), WindowType: "popup"}, []string{"c"}},
		{"no patterns", Query{}, []string{"a", "b", "d"}},
		{"nothing", Query{Title: strPtr("Nope")}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tabs, err := FilterWindows(fixtureWindows(), tt.query)
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if len(tabs) != len(tt.want) {
				t.Fatalf("expected %d tabs, got %d (%v)", len(tt.want), len(tabs), tabs)
			}
			for i, id := range tt.want {
				if tabs[i].ID != id {
					t.Errorf("tab %d: expected %q, got %q", i, id, tabs[i].ID)
				}
			}
		})
	}
}

func TestFilterWindowsLiteralPunctuation(t *testing.T) {
	windows := []Window{{ID: 1, Tabs: []Tab{
		{ID: "jira", Title: "[JIRA-12] Fix it", URL: "https://jira.example.com/browse/JIRA-12?focus=1"},
		{ID: "draft", Title: "{draft} Notes", URL: "https://notes.example.com/{id}"},
		{ID: "open", Title: "[unclosed thing", URL: `https://example.com/a\b`},
		{ID: "plain", Title: "Plain", URL: "https://example.com/"},
	}}}

	tests := []struct {
		name  string
		query Query
		want  []string
	}{
		{"brackets", Query{Title: strPtr("[JIRA-12] *")}, []string{"jira"}},
		{"braces", Query{Title: strPtr("{draft} *")}, []string{"draft"}},
		{"unclosed bracket", Query{Title: strPtr("[unclosed *")}, []string{"open"}},
		{"bracket is not a class", Query{Title: strPtr("[JP]*")}, nil},
		{"question mark wildcard", Query{Title: strPtr("Plai?")}, []string{"plain"}},
		{"braces in url", Query{URL: strPtr("*/{id}")}, []string{"draft"}},
		{"backslash in url", Query{URL: strPtr(`*a\b`)}, []string{"open"}},
		{"comma and bang", Query{Title: strPtr("!,*")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tabs, err := FilterWindows(windows, tt.query)
			if err != nil {
				t.Fatalf("filter: %v", err)
			}
			if len(tabs) != len(tt.want) {
				t.Fatalf("expected %d tabs, got %d (%v)", len(tt.want), len(tabs), tabs)
			}
			for i, id := range tt.want {
				if tabs[i].ID != id {
					t.Errorf("tab %d: expected %q, got %q", i, id, tabs[i].ID)
				}
			}
		})
	}
}

func TestFlatten(t *testing.T) {
	tabs := Flatten(fixtureWindows())
	want := []string{"a", "b", "c", "d"}
	if len(tabs) != len(want) {
		t.Fatalf("expected %d tabs, got %d", len(want), len(tabs))
	}
	for i, id := range want {
		if tabs[i].ID != id {
			t.Errorf("position %d: expected %q, got %q", i, id, tabs[i].ID)
		}
	}

	if empty := Flatten(nil); empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestMemoryBrowser(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBrowser(fixtureWindows()...)

	t.Run("window ids stamped on tabs", func(t *testing.T) {
		tab, err := b.GetTab(ctx, "c")
		if err != nil {
			t.Fatalf("get tab: %v", err)
		}
		if tab.WindowID != 2 {
			t.Errorf("expected window 2, got %d", tab.WindowID)
		}
	})

	t.Run("unknown tab", func(t *testing.T) {
		_, err := b.GetTab(ctx, "zzz")
		if !errors.Is(err, ErrNoSuchTab) {
			t.Errorf("expected ErrNoSuchTab, got %v", err)
		}
	})

	t.Run("focus and activate", func(t *testing.T) {
		if err := b.FocusWindow(ctx, 3); err != nil {
			t.Fatalf("focus: %v", err)
		}
		if err := b.ActivateTab(ctx, "d"); err != nil {
			t.Fatalf("activate: %v", err)
		}
		if b.FocusedWindow() != 3 {
			t.Errorf("expected window 3 focused, got %d", b.FocusedWindow())
		}
		if b.ActiveTab(3) != "d" {
			t.Errorf("expected tab d active, got %q", b.ActiveTab(3))
		}
		calls := b.Calls()
		if len(calls) != 2 || calls[0].Method != "focusWindow" || calls[1].Method != "activateTab" {
			t.Errorf("unexpected calls: %+v", calls)
		}
	})

	t.Run("unknown window", func(t *testing.T) {
		if err := b.FocusWindow(ctx, 99); !errors.Is(err, ErrNoSuchWindow) {
			t.Errorf("expected ErrNoSuchWindow, got %v", err)
		}
	})

	t.Run("windows are copies", func(t *testing.T) {
		ws, err := b.Windows(ctx)
		if err != nil {
			t.Fatalf("windows: %v", err)
		}
		ws[0].Tabs[0].Title = "mutated"
		tab, _ := b.GetTab(ctx, "a")
		if tab.Title == "mutated" {
			t.Error("expected Windows to return a copy")
		}
	})
}

func TestRodBrowserNotConnected(t *testing.T) {
	r := NewRodBrowser(defaultBrowserConfig())
	ctx := context.Background()

	if r.IsConnected() {
		t.Fatal("expected new RodBrowser to be disconnected")
	}
	if _, err := r.Windows(ctx); err == nil {
		t.Error("expected error listing windows without a browser")
	}
	if _, err := r.QueryTabs(ctx, Query{}); err == nil {
		t.Error("expected error querying without a browser")
	}
	if err := r.ActivateTab(ctx, "x"); err == nil {
		t.Error("expected error activating without a browser")
	}
	if err := r.FocusWindow(ctx, 1); err == nil {
		t.Error("expected error focusing without a browser")
	}
	if err := r.Shutdown(); err != nil {
		t.Errorf("shutdown of unconnected browser should be a no-op: %v", err)
	}
}

func defaultBrowserConfig() config.BrowserConfig {
	return config.DefaultConfig().Browser
}
