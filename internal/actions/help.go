package actions

// HelpVersion is bumped whenever the command set or descriptor shape changes.
const HelpVersion = 2

type CommandHelp struct {
	Command     string `json:"command"`
	Example     string `json:"example"`
	Description string `json:"description"`
}

type DescriptorField struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

// HelpPayload describes the wire protocol for peers discovering it.
type HelpPayload struct {
	Version    int               `json:"version"`
	Envelope   string            `json:"envelope"`
	Commands   []CommandHelp     `json:"commands"`
	Descriptor []DescriptorField `json:"descriptor"`
	Notes      []string          `json:"notes"`
}

// Help returns the static protocol description. It is built fresh on every
// call so no caller can mutate a shared copy.
func Help() HelpPayload {
	return HelpPayload{
		Version:  HelpVersion,
		Envelope: `{"msg": <command>}`,
		Commands: []CommandHelp{
			{
				Command:     "focus",
				Example:     `{"msg": {"focus": {"title": "* - Gmail", "not_url": "spam"}}}`,
				Description: "Focus the window of the first matching tab, then activate the tab.",
			},
			{
				Command:     "focusWindowContaining",
				Example:     `{"msg": {"focusWindowContaining": {"url": "https://calendar.google.com/*"}}}`,
				Description: "Focus the window of the first matching tab without changing its active tab.",
			},
			{
				Command:     "getAllTabs",
				Example:     `{"msg": "getAllTabs"}`,
				Description: "List every tab of every window, in window order then tab order.",
			},
			{
				Command:     "help",
				Example:     `{"msg": "help"}`,
				Description: "Describe this protocol.",
			},
		},
		Descriptor: []DescriptorField{
			{Key: "title", Kind: "glob", Description: "tab title pattern, '*' and '?' wildcards"},
			{Key: "url", Kind: "glob", Description: "tab URL pattern, '*' and '?' wildcards"},
			{Key: "not_title", Kind: "regex", Description: "skip tabs whose title matches"},
			{Key: "not_url", Kind: "regex", Description: "skip tabs whose URL matches"},
			{Key: "profile", Kind: "string", Description: "only run when this profile is active"},
			{Key: "windowType", Kind: "string", Description: "window type to search, default normal"},
		},
		Notes: []string{
			"At least one of title, url, not_title, not_url is required.",
			"Every reply is {\"reply\": ..., \"profile\": <active profile>}.",
			"Focus replies are sent once the request is issued, not once it completes.",
		},
	}
}
