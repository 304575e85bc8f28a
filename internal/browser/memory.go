package browser

import (
	"context"
	"fmt"
	"sync"
)

// Call records a mutating request made against a MemoryBrowser.
type Call struct {
	Method string
	Target string
}

// MemoryBrowser is an in-process Browser over a fixed set of windows.
// It records every focus/activate request so callers can assert side effects.
type MemoryBrowser struct {
	mu       sync.Mutex
	windows  []Window
	calls    []Call
	focused  int
	active   map[int]string
	FocusErr error
	QueryErr error
}

// NewMemoryBrowser copies windows into a new MemoryBrowser.
func NewMemoryBrowser(windows ...Window) *MemoryBrowser {
	cp := make([]Window, len(windows))
	for i, w := range windows {
		cp[i] = Window{ID: w.ID, Type: w.Type, Tabs: append([]Tab(nil), w.Tabs...)}
		if cp[i].Type == "" {
			cp[i].Type = DefaultWindowType
		}
		for j := range cp[i].Tabs {
			cp[i].Tabs[j].WindowID = w.ID
		}
	}
	return &MemoryBrowser{windows: cp, active: make(map[int]string)}
}

func (b *MemoryBrowser) QueryTabs(_ context.Context, q Query) ([]Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.QueryErr != nil {
		return nil, b.QueryErr
	}
	return FilterWindows(b.windows, q)
}

func (b *MemoryBrowser) GetTab(_ context.Context, id string) (Tab, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.windows {
		for _, t := range w.Tabs {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return Tab{}, fmt.Errorf("tab %s: %w", id, ErrNoSuchTab)
}

func (b *MemoryBrowser) FocusWindow(_ context.Context, windowID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "focusWindow", Target: fmt.Sprint(windowID)})
	if b.FocusErr != nil {
		return b.FocusErr
	}
	for _, w := range b.windows {
		if w.ID == windowID {
			b.focused = windowID
			return nil
		}
	}
	return fmt.Errorf("window %d: %w", windowID, ErrNoSuchWindow)
}

func (b *MemoryBrowser) ActivateTab(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: "activateTab", Target: id})
	if b.FocusErr != nil {
		return b.FocusErr
	}
	for _, w := range b.windows {
		for _, t := range w.Tabs {
			if t.ID == id {
				b.active[w.ID] = id
				return nil
			}
		}
	}
	return fmt.Errorf("tab %s: %w", id, ErrNoSuchTab)
}

func (b *MemoryBrowser) Windows(_ context.Context) ([]Window, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.QueryErr != nil {
		return nil, b.QueryErr
	}
	out := make([]Window, len(b.windows))
	for i, w := range b.windows {
		out[i] = Window{ID: w.ID, Type: w.Type, Tabs: append([]Tab(nil), w.Tabs...)}
	}
	return out, nil
}

// Calls returns a copy of the mutating requests seen so far.
func (b *MemoryBrowser) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// FocusedWindow returns the id of the last successfully focused window (0 if none).
func (b *MemoryBrowser) FocusedWindow() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focused
}

// ActiveTab returns the active tab id recorded for a window.
func (b *MemoryBrowser) ActiveTab(windowID int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active[windowID]
}
