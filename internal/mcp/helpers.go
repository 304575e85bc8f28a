package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/matthewfallshaw/chrome-tabs-finder/internal/search"
)

func getStringArg(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// descriptorFromArgs reuses the wire decoding so tool calls and native
// messages accept exactly the same descriptors.
func descriptorFromArgs(args map[string]interface{}) (search.Descriptor, error) {
	var desc search.Descriptor
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return desc, fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return desc, err
	}
	return desc, nil
}
