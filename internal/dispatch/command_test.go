package dispatch

import (
	"errors"
	"testing"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/search"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		kind Kind
		raw  string
	}{
		{"getAllTabs", `{"msg":"getAllTabs"}`, KindGetAllTabs, ""},
		{"help", `{"msg":"help"}`, KindHelp, ""},
		{"focus", `{"msg":{"focus":{"title":"x"}}}`, KindFocus, ""},
		{"focusWindowContaining", `{"msg":{"focusWindowContaining":{"url":"x"}}}`, KindFocusWindowContaining, ""},
		{"focus wins over window", `{"msg":{"focusWindowContaining":{"url":"x"},"focus":{"title":"y"}}}`, KindFocus, ""},
		{"unknown string", `{"msg":"dance"}`, KindUnrecognized, `"dance"`},
		{"unknown object", `{"msg": {"close": {}}}`, KindUnrecognized, `{"close":{}}`},
		{"number msg", `{"msg":7}`, KindUnrecognized, `7`},
		{"missing msg", `{"message":"help"}`, KindUnrecognized, `{"message":"help"}`},
		{"bare string", `"help"`, KindUnrecognized, `"help"`},
		{"null", `null`, KindUnrecognized, `null`},
		{"not json", `{"msg": "help"`, KindMalformed, ""},
		{"garbage bytes", "\x00\xff\xfe", KindMalformed, ""},
		{"case sensitive", `{"msg":"Help"}`, KindUnrecognized, `"Help"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := Parse([]byte(tt.in))
			if cmd.Kind != tt.kind {
				t.Fatalf("expected %s, got %s", tt.kind, cmd.Kind)
			}
			if tt.raw != "" && string(cmd.Raw) != tt.raw {
				t.Errorf("expected raw %s, got %s", tt.raw, cmd.Raw)
			}
		})
	}
}

func TestParseDescriptor(t *testing.T) {
	cmd := Parse([]byte(`{"msg":{"focus":{"title":"Gmail*","not_url":"spam","profile":"work","colour":"red"}}}`))
	if cmd.Kind != KindFocus {
		t.Fatalf("expected focus, got %s", cmd.Kind)
	}
	if cmd.SearchErr != nil {
		t.Fatalf("unexpected descriptor error: %v", cmd.SearchErr)
	}
	if cmd.Search.Title == nil || *cmd.Search.Title != "Gmail*" {
		t.Errorf("unexpected title %v", cmd.Search.Title)
	}
	if cmd.Search.Profile == nil || *cmd.Search.Profile != "work" {
		t.Errorf("unexpected profile %v", cmd.Search.Profile)
	}
	if len(cmd.Search.Unknown) != 1 || cmd.Search.Unknown[0] != "colour" {
		t.Errorf("expected colour flagged as unknown, got %v", cmd.Search.Unknown)
	}

	bad := Parse([]byte(`{"msg":{"focus":"Gmail"}}`))
	if bad.Kind != KindFocus {
		t.Fatalf("expected focus kind even with a bad descriptor, got %s", bad.Kind)
	}
	if !errors.Is(bad.SearchErr, search.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", bad.SearchErr)
	}
}

func TestKindString(t *testing.T) {
	if KindFocusWindowContaining.String() != "focusWindowContaining" {
		t.Errorf("unexpected name %q", KindFocusWindowContaining.String())
	}
	if Kind(99).String() != "unrecognized" {
		t.Errorf("unexpected name for unknown kind %q", Kind(99).String())
	}
}
