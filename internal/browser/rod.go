package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser drives a real Chrome over the DevTools protocol.
// Tabs are page targets; their window comes from Browser.getWindowForTarget.
type RodBrowser struct {
	cfg     config.BrowserConfig
	mu      sync.RWMutex
	browser *rod.Browser
}

func NewRodBrowser(cfg config.BrowserConfig) *RodBrowser {
	return &RodBrowser{cfg: cfg}
}

// Start connects to an existing Chrome or launches a new one using Rod's launcher.
func (r *RodBrowser) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		if _, err := r.browser.Version(); err == nil {
			return nil
		}
		log.Printf("Stale browser connection detected, reconnecting...")
		_ = r.browser.Close()
		r.browser = nil
	}

	controlURL := r.cfg.DebuggerURL
	if len(r.cfg.Launch) > 0 {
		bin := r.cfg.Launch[0]
		launch := launcher.New().Bin(bin).Headless(r.cfg.IsHeadless())
		for _, rawFlag := range r.cfg.Launch[1:] {
			flagStr := strings.TrimLeft(rawFlag, "-")
			name, val, hasVal := strings.Cut(flagStr, "=")
			if hasVal {
				launch = launch.Set(flags.Flag(name), val)
			} else {
				launch = launch.Set(flags.Flag(name))
			}
		}
		url, err := launch.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	if controlURL == "" {
		return errors.New("no debugger_url or launch command provided")
	}

	attachCtx, cancel := context.WithTimeout(ctx, r.cfg.AttachTimeoutDuration())
	defer cancel()

	b := rod.New().ControlURL(controlURL).Context(attachCtx)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	// Detach from the attach deadline once connected.
	r.browser = b.Context(context.Background())
	log.Printf("Browser connected at %s", controlURL)
	return nil
}

// IsConnected returns whether the browser is currently connected.
func (r *RodBrowser) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.browser != nil
}

// Shutdown drops the DevTools connection. A browser we attached to keeps running.
func (r *RodBrowser) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.browser != nil {
		if len(r.cfg.Launch) > 0 {
			err = r.browser.Close()
		}
		r.browser = nil
	}
	return err
}

func (r *RodBrowser) client(ctx context.Context) (*rod.Browser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return r.browser.Context(ctx), nil
}

func (r *RodBrowser) QueryTabs(ctx context.Context, q Query) ([]Tab, error) {
	windows, err := r.Windows(ctx)
	if err != nil {
		return nil, err
	}
	return FilterWindows(windows, q)
}

func (r *RodBrowser) GetTab(ctx context.Context, id string) (Tab, error) {
	b, err := r.client(ctx)
	if err != nil {
		return Tab{}, err
	}

	res, err := proto.TargetGetTargetInfo{TargetID: proto.TargetTargetID(id)}.Call(b)
	if err != nil || res.TargetInfo == nil {
		return Tab{}, fmt.Errorf("tab %s: %w", id, ErrNoSuchTab)
	}

	win, err := proto.BrowserGetWindowForTarget{TargetID: res.TargetInfo.TargetID}.Call(b)
	if err != nil {
		return Tab{}, fmt.Errorf("window for tab %s: %w", id, err)
	}

	return Tab{
		ID:       string(res.TargetInfo.TargetID),
		Title:    res.TargetInfo.Title,
		URL:      res.TargetInfo.URL,
		WindowID: int(win.WindowID),
	}, nil
}

// FocusWindow restores the window from minimized or fullscreen state.
// DevTools has no "raise window" call; ActivateTab is what brings a window forward.
func (r *RodBrowser) FocusWindow(ctx context.Context, windowID int) error {
	b, err := r.client(ctx)
	if err != nil {
		return err
	}

	err = proto.BrowserSetWindowBounds{
		WindowID: proto.BrowserWindowID(windowID),
		Bounds:   &proto.BrowserBounds{WindowState: proto.BrowserWindowStateNormal},
	}.Call(b)
	if err != nil {
		return fmt.Errorf("focus window %d: %w", windowID, err)
	}
	return nil
}

func (r *RodBrowser) ActivateTab(ctx context.Context, id string) error {
	b, err := r.client(ctx)
	if err != nil {
		return err
	}
	if err := (proto.TargetActivateTarget{TargetID: proto.TargetTargetID(id)}).Call(b); err != nil {
		return fmt.Errorf("activate tab %s: %w", id, err)
	}
	return nil
}

// Windows groups page targets by window in the order DevTools reports them.
func (r *RodBrowser) Windows(ctx context.Context) ([]Window, error) {
	b, err := r.client(ctx)
	if err != nil {
		return nil, err
	}

	res, err := proto.TargetGetTargets{}.Call(b)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}

	var windows []Window
	index := make(map[int]int)
	for _, info := range res.TargetInfos {
		if info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		win, err := proto.BrowserGetWindowForTarget{TargetID: info.TargetID}.Call(b)
		if err != nil {
			// Targets can close between the two calls.
			log.Printf("skipping target %s: %v", info.TargetID, err)
			continue
		}
		wid := int(win.WindowID)
		i, ok := index[wid]
		if !ok {
			i = len(windows)
			index[wid] = i
			windows = append(windows, Window{ID: wid, Type: DefaultWindowType})
		}
		windows[i].Tabs = append(windows[i].Tabs, Tab{
			ID:       string(info.TargetID),
			Title:    info.Title,
			URL:      info.URL,
			WindowID: wid,
		})
	}
	return windows, nil
}
