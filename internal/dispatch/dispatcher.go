package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/actions"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/browser"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/profile"
	"github.com/matthewfallshaw/chrome-tabs-finder/internal/search"
)

const (
	NothingFound    = "nothing found"
	PoorlyFormed    = "received poorly formed message"
	unrecognizedFmt = "unrecognized command: %s"
)

// FallbackReply is written when a reply cannot be encoded at all.
const FallbackReply = `{"reply":"reply could not be encoded","profile":""}`

// Reply is the envelope written back for every inbound message.
type Reply struct {
	Reply   interface{} `json:"reply"`
	Profile string      `json:"profile"`
}

// Dispatcher routes commands to the search matcher, profile gate and executors.
type Dispatcher struct {
	browser browser.Browser
	gate    *profile.Gate
	exec    *actions.Executor
}

func New(b browser.Browser, gate *profile.Gate, exec *actions.Executor) *Dispatcher {
	return &Dispatcher{browser: b, gate: gate, exec: exec}
}

// Handle processes one inbound message and returns the outbound frame payload.
// It always returns a payload and never panics.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) (out []byte) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			log.Printf("dispatch fault: %v", r)
			out = Frame(Reply{Reply: fmt.Sprintf("internal error: %v", r), Profile: current})
		}
	}()

	cmd := Parse(data)
	current = d.gate.Current(ctx)
	if cmd.Kind == KindMalformed {
		log.Printf("Received poorly formed: %q", truncate(string(data), 256))
	}
	return Frame(d.dispatch(ctx, cmd, current))
}

// Dispatch runs an already-classified command and returns its reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) Reply {
	return d.dispatch(ctx, cmd, d.gate.Current(ctx))
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd Command, current string) Reply {
	reply := func(v interface{}) Reply {
		return Reply{Reply: v, Profile: current}
	}

	switch cmd.Kind {
	case KindMalformed:
		return reply(PoorlyFormed)

	case KindHelp:
		return reply(actions.Help())

	case KindGetAllTabs:
		tabs, err := d.exec.GetAllTabs(ctx)
		if err != nil {
			log.Printf("getAllTabs: %v", err)
			return reply(fmt.Sprintf("getAllTabs failed: %v", err))
		}
		return reply(tabs)

	case KindFocus, KindFocusWindowContaining:
		tab, denial := d.locate(ctx, cmd, current)
		if denial != "" {
			return reply(denial)
		}
		if cmd.Kind == KindFocus {
			return reply(d.exec.FocusTab(tab))
		}
		return reply(d.exec.FocusWindowContaining(tab))

	default:
		log.Printf("unrecognized command: %s", cmd.Raw)
		return reply(fmt.Sprintf(unrecognizedFmt, string(cmd.Raw)))
	}
}

// locate validates, gates and searches. A non-empty second result is the
// reply to send instead of acting.
func (d *Dispatcher) locate(ctx context.Context, cmd Command, current string) (browser.Tab, string) {
	if cmd.SearchErr != nil {
		return browser.Tab{}, cmd.SearchErr.Error()
	}
	desc := cmd.Search
	if len(desc.Unknown) > 0 {
		log.Printf("%s: ignoring unknown descriptor keys %s", cmd.Kind, strings.Join(desc.Unknown, ", "))
	}

	plan, err := search.Compile(desc)
	if err != nil {
		return browser.Tab{}, err.Error()
	}

	if decision := profile.Check(desc.Profile, current); !decision.Allowed {
		log.Printf("%s: %s (current profile %q)", cmd.Kind, decision.Reason, current)
		return browser.Tab{}, decision.Reason
	}

	candidates, err := d.browser.QueryTabs(ctx, plan.Query())
	if err != nil {
		log.Printf("%s: query tabs: %v", cmd.Kind, err)
		return browser.Tab{}, fmt.Sprintf("search failed: %v", err)
	}
	tab, err := plan.First(candidates)
	if errors.Is(err, search.ErrNotFound) {
		log.Printf("Nothing found.")
		return browser.Tab{}, NothingFound
	}
	if err != nil {
		return browser.Tab{}, err.Error()
	}
	return tab, ""
}

// Encode serializes a reply, degrading to a diagnostic and then to FallbackReply.
func Encode(r Reply) []byte {
	payload, err := json.Marshal(r)
	if err == nil {
		return payload
	}

	log.Printf("reply not serializable: %v", err)
	payload, err = json.Marshal(Reply{
		Reply:   fmt.Sprintf("reply could not be encoded: %v", err),
		Profile: r.Profile,
	})
	if err == nil {
		return payload
	}
	return []byte(FallbackReply)
}

// Frame encodes r and wraps the result as a JSON string, the form in which
// replies travel over the native port.
func Frame(r Reply) []byte {
	framed, err := json.Marshal(string(Encode(r)))
	if err != nil {
		framed, _ = json.Marshal(FallbackReply)
	}
	return framed
}

// Unframe reverses Frame, returning the reply object bytes.
func Unframe(frame []byte) ([]byte, error) {
	var inner string
	if err := json.Unmarshal(frame, &inner); err != nil {
		return nil, fmt.Errorf("reply frame is not a JSON string: %w", err)
	}
	return []byte(inner), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
