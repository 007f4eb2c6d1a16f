package worker

import (
	"sort"
	"strings"
)

// Info describes built-in metadata for a worker CLI. Only CLIs that
// implement the session-forking contract in pkg/protocol belong here.
type Info struct {
	Name            string
	Binary          string
	DefaultModel    string
	DefaultSandbox  string
	SupportedModels []string
}

var builtin = map[string]Info{
	"codex": {
		Name:           "codex",
		Binary:         "codex",
		DefaultModel:   "gpt-5-codex-high",
		DefaultSandbox: "danger-full-access",
		SupportedModels: []string{
			"gpt-5-codex-high",
			"gpt-5-codex-medium",
			"gpt-5-codex-low",
		},
	},
}

// InfoFor returns metadata for a worker name.
func InfoFor(name string) (Info, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	info, ok := builtin[name]
	if !ok {
		return Info{}, false
	}
	return clone(info), true
}

// Names returns known worker names in stable order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for name := range builtin {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func clone(info Info) Info {
	cp := info
	cp.SupportedModels = append([]string(nil), info.SupportedModels...)
	return cp
}
