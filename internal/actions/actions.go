// Package actions performs the browser side effects behind each command.
//
// Focus actions are fire-and-forget: the browser requests are issued on a
// background goroutine and the reply is produced without waiting for them.
package actions

import (
	"context"
	"log"
	"sync"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
)

const (
	FocusedTab    = "Focused tab"
	FocusedWindow = "Focused window"
)

// AllTabs is the getAllTabs payload: every tab, flattened in window order.
type AllTabs struct {
	Windows []browser.Tab `json:"windows"`
}

// Executor runs actions against a Browser.
type Executor struct {
	browser browser.Browser
	wg      sync.WaitGroup
}

func NewExecutor(b browser.Browser) *Executor {
	return &Executor{browser: b}
}

// FocusTab requests focus of the tab's window, then activation of the tab.
// Failures are logged only; the caller is told "Focused tab" as soon as the
// requests are issued.
func (e *Executor) FocusTab(tab browser.Tab) string {
	e.spawn(func(ctx context.Context) {
		info, ok := e.resolve(ctx, tab)
		if !ok {
			return
		}
		if err := e.browser.FocusWindow(ctx, info.WindowID); err != nil {
			log.Printf("focus window %d for tab %s: %v", info.WindowID, info.ID, err)
		}
		if err := e.browser.ActivateTab(ctx, info.ID); err != nil {
			log.Printf("activate tab %s: %v", info.ID, err)
		}
	})
	return FocusedTab
}

// FocusWindowContaining requests focus of the tab's window only.
func (e *Executor) FocusWindowContaining(tab browser.Tab) string {
	e.spawn(func(ctx context.Context) {
		info, ok := e.resolve(ctx, tab)
		if !ok {
			return
		}
		if err := e.browser.FocusWindow(ctx, info.WindowID); err != nil {
			log.Printf("focus window %d for tab %s: %v", info.WindowID, info.ID, err)
		}
	})
	return FocusedWindow
}

// GetAllTabs enumerates every window and flattens their tabs without re-sorting.
func (e *Executor) GetAllTabs(ctx context.Context) (AllTabs, error) {
	windows, err := e.browser.Windows(ctx)
	if err != nil {
		return AllTabs{}, err
	}
	return AllTabs{Windows: browser.Flatten(windows)}, nil
}

// Wait blocks until every issued focus request has finished. Replies never wait on it.
func (e *Executor) Wait() {
	e.wg.Wait()
}

// resolve re-reads the tab so the window id is current at focus time.
func (e *Executor) resolve(ctx context.Context, tab browser.Tab) (browser.Tab, bool) {
	info, err := e.browser.GetTab(ctx, tab.ID)
	if err != nil {
		log.Printf("tab %s vanished before focus: %v", tab.ID, err)
		return browser.Tab{}, false
	}
	return info, true
}

func (e *Executor) spawn(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("focus action panicked: %v", r)
			}
		}()
		fn(context.Background())
	}()
}
