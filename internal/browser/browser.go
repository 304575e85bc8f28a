// Package browser is the tab and window surface the tabs finder drives:
// query tabs by glob, activate tabs, focus windows and enumerate windows.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultWindowType is the window type searched when a query names none.
const DefaultWindowType = "normal"

// ErrNoSuchTab is returned when a tab id does not resolve to a live tab.
var ErrNoSuchTab = errors.New("no such tab")

// ErrNoSuchWindow is returned when a window id does not resolve to a live window.
var ErrNoSuchWindow = errors.New("no such window")

// Tab is a browser-owned tab as observed by the finder. It is never persisted.
type Tab struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	WindowID int    `json:"windowId"`
}

// Window is a browser window with its tabs populated in browser order.
type Window struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Tabs []Tab  `json:"tabs"`
}

// Query is the positive-only filter the browser evaluates itself.
// Title and URL are glob patterns; nil means "any".
type Query struct {
	Title      *string
	URL        *string
	WindowType string
}

// Browser is the asynchronous tab/window API consumed by the finder.
type Browser interface {
	// QueryTabs returns tabs matching q, windows in browser order and tabs in window order.
	QueryTabs(ctx context.Context, q Query) ([]Tab, error)
	// GetTab resolves a tab by id.
	GetTab(ctx context.Context, id string) (Tab, error)
	// FocusWindow requests that a window be raised and focused.
	FocusWindow(ctx context.Context, windowID int) error
	// ActivateTab makes a tab the active, highlighted tab of its window.
	ActivateTab(ctx context.Context, id string) error
	// Windows enumerates all windows with their tabs.
	Windows(ctx context.Context) ([]Window, error)
}

// Matcher is a compiled Query.
type Matcher struct {
	title      glob.Glob
	url        glob.Glob
	windowType string
}

// Compile turns a Query into a Matcher. Patterns use '*' and '?' wildcards
// with no separator characters, so '*' spans '/' in URLs. Every other
// character, brackets and braces included, matches itself.
func (q Query) Compile() (*Matcher, error) {
	m := &Matcher{windowType: q.WindowType}
	if m.windowType == "" {
		m.windowType = DefaultWindowType
	}
	if q.Title != nil {
		g, err := compileWildcards(*q.Title)
		if err != nil {
			return nil, fmt.Errorf("title pattern %q: %w", *q.Title, err)
		}
		m.title = g
	}
	if q.URL != nil {
		g, err := compileWildcards(*q.URL)
		if err != nil {
			return nil, fmt.Errorf("url pattern %q: %w", *q.URL, err)
		}
		m.url = g
	}
	return m, nil
}

// compileWildcards quotes the literal runs of pattern so only '*' and '?'
// reach the glob compiler as syntax.
func compileWildcards(pattern string) (glob.Glob, error) {
	var b strings.Builder
	start := 0
	for i := 0; i < len(pattern); i++ {
		if c := pattern[i]; c == '*' || c == '?' {
			b.WriteString(glob.QuoteMeta(pattern[start:i]))
			b.WriteByte(c)
			start = i + 1
		}
	}
	b.WriteString(glob.QuoteMeta(pattern[start:]))
	return glob.Compile(b.String())
}

// Matches reports whether a tab in a window of windowType satisfies the query.
func (m *Matcher) Matches(tab Tab, windowType string) bool {
	if windowType == "" {
		windowType = DefaultWindowType
	}
	if m.windowType != windowType {
		return false
	}
	if m.title != nil && !m.title.Match(tab.Title) {
		return false
	}
	if m.url != nil && !m.url.Match(tab.URL) {
		return false
	}
	return true
}

// FilterWindows applies q to windows, preserving window then tab order.
func FilterWindows(windows []Window, q Query) ([]Tab, error) {
	m, err := q.Compile()
	if err != nil {
		return nil, err
	}
	var out []Tab
	for _, w := range windows {
		for _, t := range w.Tabs {
			if m.Matches(t, w.Type) {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// Flatten returns every tab of windows in window order, then tab order.
func Flatten(windows []Window) []Tab {
	out := make([]Tab, 0)
	for _, w := range windows {
		out = append(out, w.Tabs...)
	}
	return out
}
