// Package dispatch classifies inbound native messages and turns each one into
// exactly one reply.
package dispatch

import (
	"bytes"
	"encoding/json"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/search"
)

// Kind tags the variant of a parsed Command.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindMalformed
	KindFocus
	KindFocusWindowContaining
	KindGetAllTabs
	KindHelp
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindFocus:
		return "focus"
	case KindFocusWindowContaining:
		return "focusWindowContaining"
	case KindGetAllTabs:
		return "getAllTabs"
	case KindHelp:
		return "help"
	default:
		return "unrecognized"
	}
}

// Command is one classified inbound message.
type Command struct {
	Kind Kind
	// Search is set for KindFocus and KindFocusWindowContaining.
	Search search.Descriptor
	// SearchErr records a descriptor that could not be decoded.
	SearchErr error
	// Raw is the unrecognized payload, echoed back to the peer.
	Raw json.RawMessage
}

// Parse classifies an inbound message of the form {"msg": <command>}.
// It never fails: bytes that are not JSON become KindMalformed and any other
// unexpected shape becomes KindUnrecognized.
func Parse(data []byte) Command {
	if !json.Valid(data) {
		return Command{Kind: KindMalformed}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil || envelope == nil {
		return Command{Kind: KindUnrecognized, Raw: compact(data)}
	}
	msg, ok := envelope["msg"]
	if !ok {
		return Command{Kind: KindUnrecognized, Raw: compact(data)}
	}

	var name string
	if err := json.Unmarshal(msg, &name); err == nil {
		switch name {
		case "getAllTabs":
			return Command{Kind: KindGetAllTabs}
		case "help":
			return Command{Kind: KindHelp}
		}
		return Command{Kind: KindUnrecognized, Raw: compact(msg)}
	}

	var object map[string]json.RawMessage
	if err := json.Unmarshal(msg, &object); err != nil || object == nil {
		return Command{Kind: KindUnrecognized, Raw: compact(msg)}
	}

	// focus takes precedence when a peer sends both keys.
	if raw, ok := object["focus"]; ok {
		return withDescriptor(KindFocus, raw)
	}
	if raw, ok := object["focusWindowContaining"]; ok {
		return withDescriptor(KindFocusWindowContaining, raw)
	}
	return Command{Kind: KindUnrecognized, Raw: compact(msg)}
}

func withDescriptor(kind Kind, raw json.RawMessage) Command {
	cmd := Command{Kind: kind}
	if err := json.Unmarshal(raw, &cmd.Search); err != nil {
		cmd.SearchErr = err
	}
	return cmd
}

func compact(raw []byte) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return append(json.RawMessage(nil), raw...)
	}
	return json.RawMessage(buf.Bytes())
}
