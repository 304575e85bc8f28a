// Package search turns a declarative tab descriptor into a browser query plus
// a residual exclusion filter.
//
// title and url are glob patterns evaluated by the browser; not_title and
// not_url are regular expressions applied afterwards, because the browser
// query only supports positive matches.
package search

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
)

var (
	// ErrInvalidDescriptor marks a descriptor that cannot be searched with.
	ErrInvalidDescriptor = errors.New("invalid search descriptor")
	// ErrNotFound is the negative result: no candidate survived the filter.
	ErrNotFound = errors.New("nothing found")
)

// Descriptor describes which tab to find. Absent fields are nil; a present
// empty string is a pattern like any other.
type Descriptor struct {
	Title      *string `json:"title,omitempty"`
	URL        *string `json:"url,omitempty"`
	NotTitle   *string `json:"not_title,omitempty"`
	NotURL     *string `json:"not_url,omitempty"`
	Profile    *string `json:"profile,omitempty"`
	WindowType string  `json:"windowType,omitempty"`

	// Unknown lists keys present in the JSON form that the finder ignores.
	Unknown []string `json:"-"`
}

var knownKeys = map[string]bool{
	"title":      true,
	"url":        true,
	"not_title":  true,
	"not_url":    true,
	"profile":    true,
	"windowType": true,
}

// UnmarshalJSON decodes a descriptor object, recording unknown keys instead of failing on them.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: expected an object: %v", ErrInvalidDescriptor, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: expected an object, got null", ErrInvalidDescriptor)
	}

	out := Descriptor{}
	for key, raw := range fields {
		if !knownKeys[key] {
			out.Unknown = append(out.Unknown, key)
			continue
		}
		if string(bytes.TrimSpace(raw)) == "null" {
			// null reads as absent.
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidDescriptor, key)
		}
		switch key {
		case "title":
			out.Title = &s
		case "url":
			out.URL = &s
		case "not_title":
			out.NotTitle = &s
		case "not_url":
			out.NotURL = &s
		case "profile":
			out.Profile = &s
		case "windowType":
			out.WindowType = s
		}
	}
	sort.Strings(out.Unknown)
	*d = out
	return nil
}

// Validate enforces that at least one matching key is present.
func (d Descriptor) Validate() error {
	if d.Title == nil && d.URL == nil && d.NotTitle == nil && d.NotURL == nil {
		return fmt.Errorf("%w: need one of title, url, not_title or not_url", ErrInvalidDescriptor)
	}
	return nil
}

// Plan is a compiled descriptor.
type Plan struct {
	query    browser.Query
	notTitle *regexp.Regexp
	notURL   *regexp.Regexp
}

// Compile validates d and compiles its exclusion expressions.
func Compile(d Descriptor) (*Plan, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	windowType := d.WindowType
	if windowType == "" {
		windowType = browser.DefaultWindowType
	}

	p := &Plan{
		query: browser.Query{Title: d.Title, URL: d.URL, WindowType: windowType},
	}
	if d.NotTitle != nil {
		re, err := regexp.Compile(*d.NotTitle)
		if err != nil {
			return nil, fmt.Errorf("%w: not_title: %v", ErrInvalidDescriptor, err)
		}
		p.notTitle = re
	}
	if d.NotURL != nil {
		re, err := regexp.Compile(*d.NotURL)
		if err != nil {
			return nil, fmt.Errorf("%w: not_url: %v", ErrInvalidDescriptor, err)
		}
		p.notURL = re
	}
	return p, nil
}

// Query is the primary, positive-only query pushed to the browser.
func (p *Plan) Query() browser.Query {
	return p.query
}

// Excluded reports whether the residual filter rejects tab.
func (p *Plan) Excluded(tab browser.Tab) bool {
	if p.notTitle != nil && p.notTitle.MatchString(tab.Title) {
		return true
	}
	if p.notURL != nil && p.notURL.MatchString(tab.URL) {
		return true
	}
	return false
}

// First returns the first candidate, in the given order, not excluded by the residual filter.
func (p *Plan) First(candidates []browser.Tab) (browser.Tab, error) {
	for _, tab := range candidates {
		if !p.Excluded(tab) {
			return tab, nil
		}
	}
	return browser.Tab{}, ErrNotFound
}

// Match compiles d and applies its residual filter to candidates that already
// satisfied the primary query.
func Match(d Descriptor, candidates []browser.Tab) (browser.Tab, error) {
	p, err := Compile(d)
	if err != nil {
		return browser.Tab{}, err
	}
	return p.First(candidates)
}
