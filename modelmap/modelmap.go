// Package modelmap translates unified, provider-agnostic model names
// (e.g. "llama-70b") into the provider-specific names each upstream
// expects, so callers never need to know what NVIDIA calls a model that
// Cerebras also serves.
package modelmap

import "strings"

// DefaultModel is used whenever a request omits a model name.
const DefaultModel = "llama-70b"

// seed is the built-in unified -> {provider -> provider-specific} table.
var seed = map[string]map[string]string{
	"llama-70b": {
		"cerebras": "llama-3.3-70b",
		"nvidia":   "meta/llama-3.3-70b-instruct",
	},
	"llama-3.3-70b": {
		"cerebras": "llama-3.3-70b",
		"nvidia":   "meta/llama-3.3-70b-instruct",
	},
	"llama-8b": {
		"cerebras": "llama3.1-8b",
		"nvidia":   "meta/llama-3.1-8b-instruct",
	},
	"llama-3.1-8b": {
		"cerebras": "llama3.1-8b",
		"nvidia":   "meta/llama-3.1-8b-instruct",
	},
	"llama-3.1-70b": {
		"cerebras": "llama-3.1-70b",
		"nvidia":   "meta/llama-3.1-70b-instruct",
	},
}

// ModelMap is immutable after New; safe for concurrent reads.
type ModelMap struct {
	entries map[string]map[string]string
}

// New builds a ModelMap from the seed table overlaid with custom,
// case-folded overrides loaded from configuration.
func New(custom map[string]map[string]string) *ModelMap {
	entries := make(map[string]map[string]string, len(seed)+len(custom))
	for k, v := range seed {
		entries[k] = v
	}
	for k, v := range custom {
		key := strings.ToLower(strings.TrimSpace(k))
		merged := make(map[string]string, len(v))
		for provider, name := range v {
			merged[provider] = name
		}
		entries[key] = merged
	}
	return &ModelMap{entries: entries}
}

// Resolve maps unifiedName to the name provider expects. An empty
// unifiedName falls back to DefaultModel. Unknown names, and names
// known but lacking an entry for provider, pass through unchanged.
func (m *ModelMap) Resolve(unifiedName, provider string) string {
	name := strings.ToLower(strings.TrimSpace(unifiedName))
	if name == "" {
		name = DefaultModel
	}

	providers, ok := m.entries[name]
	if !ok {
		return passThrough(unifiedName, name)
	}
	if specific, ok := providers[provider]; ok {
		return specific
	}
	return passThrough(unifiedName, name)
}

// passThrough returns the original input unchanged, unless it was empty
// in which case the resolved default name is used instead.
func passThrough(original, resolved string) string {
	if original == "" {
		return resolved
	}
	return original
}

// Names returns every unified model name known to the map.
func (m *ModelMap) Names() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	return names
}
