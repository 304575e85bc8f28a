package mcp

import (
	"context"
	"fmt"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/dispatch"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
)

type FocusTabTool struct {
	dispatcher *dispatch.Dispatcher
}

func (t *FocusTabTool) Name() string { return "focus-tab" }
func (t *FocusTabTool) Description() string {
	return `Bring the first tab matching a search descriptor to the front.

The tab's window is raised first, then the tab is activated. Both happen
in the background; the reply only confirms that a tab was found.

MATCHING:
- title / url: glob patterns ('*' and '?'), matched by the browser
- not_title / not_url: regular expressions, matching tabs are skipped
- profile: only act when this profile is the active one

At least one of title, url, not_title or not_url is required.

Returns: {reply, profile}. reply is "Focused tab", "nothing found",
"wrong profile: wanted X" or a validation message.`
}
func (t *FocusTabTool) InputSchema() map[string]interface{} {
	return descriptorSchema()
}
func (t *FocusTabTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	desc, err := descriptorFromArgs(args)
	if err != nil {
		return nil, err
	}
	return t.dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindFocus, Search: desc}), nil
}

type FocusWindowTool struct {
	dispatcher *dispatch.Dispatcher
}

func (t *FocusWindowTool) Name() string { return "focus-window" }
func (t *FocusWindowTool) Description() string {
	return `Raise the window holding the first tab matching a search descriptor,
without changing which tab is active in it.

Takes the same descriptor as focus-tab.

Returns: {reply, profile}. reply is "Focused window" on success.`
}
func (t *FocusWindowTool) InputSchema() map[string]interface{} {
	return descriptorSchema()
}
func (t *FocusWindowTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	desc, err := descriptorFromArgs(args)
	if err != nil {
		return nil, err
	}
	return t.dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindFocusWindowContaining, Search: desc}), nil
}

type ListTabsTool struct {
	dispatcher *dispatch.Dispatcher
}

func (t *ListTabsTool) Name() string { return "list-tabs" }
func (t *ListTabsTool) Description() string {
	return `List every open tab across all windows, in window order then tab order.

Returns: {reply: {windows: [{id, title, url, windowId}]}, profile}`
}
func (t *ListTabsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListTabsTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindGetAllTabs}), nil
}

type HelpTool struct {
	dispatcher *dispatch.Dispatcher
}

func (t *HelpTool) Name() string { return "help" }
func (t *HelpTool) Description() string {
	return "Describe the native-messaging protocol: envelope, commands and descriptor fields."
}
func (t *HelpTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *HelpTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.dispatcher.Dispatch(ctx, dispatch.Command{Kind: dispatch.KindHelp}), nil
}

type SetProfileTool struct {
	store profile.Store
	gate  *profile.Gate
}

func (t *SetProfileTool) Name() string { return "set-profile" }
func (t *SetProfileTool) Description() string {
	return `Set the active profile name used by the profile gate.

Commands that name a different profile are refused until it changes again.

Returns: {previous, profile}`
}
func (t *SetProfileTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"profile": map[string]interface{}{
				"type":        "string",
				"description": "New profile name (non-empty)",
			},
		},
		"required": []string{"profile"},
	}
}
func (t *SetProfileTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	name := getStringArg(args, "profile")
	if name == "" {
		return nil, fmt.Errorf("profile is required")
	}
	previous := t.gate.Current(ctx)
	if err := t.store.Set(ctx, name); err != nil {
		return nil, fmt.Errorf("set profile: %w", err)
	}
	return map[string]interface{}{
		"previous": previous,
		"profile":  t.gate.Current(ctx),
	}, nil
}

func descriptorSchema() map[string]interface{} {
	str := func(desc string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "description": desc}
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title":      str("Glob pattern for the tab title"),
			"url":        str("Glob pattern for the tab URL"),
			"not_title":  str("Regular expression; tabs whose title matches are skipped"),
			"not_url":    str("Regular expression; tabs whose URL matches are skipped"),
			"profile":    str("Only act when this profile is active"),
			"windowType": str("Window type to search (default \"normal\")"),
		},
	}
}
