package modelmap

import "testing"

func TestResolveSeedMappings(t *testing.T) {
	m := New(nil)

	cases := []struct {
		unified, provider, want string
	}{
		{"llama-70b", "cerebras", "llama-3.3-70b"},
		{"llama-70b", "nvidia", "meta/llama-3.3-70b-instruct"},
		{"llama-8b", "cerebras", "llama3.1-8b"},
		{"llama-8b", "nvidia", "meta/llama-3.1-8b-instruct"},
		{"llama-3.1-70b", "cerebras", "llama-3.1-70b"},
		{"llama-3.1-70b", "nvidia", "meta/llama-3.1-70b-instruct"},
	}
	for _, c := range cases {
		got := m.Resolve(c.unified, c.provider)
		if got != c.want {
			t.Errorf("Resolve(%q, %q) = %q, want %q", c.unified, c.provider, got, c.want)
		}
	}
}

func TestResolveDefaultsWhenEmpty(t *testing.T) {
	m := New(nil)
	got := m.Resolve("", "cerebras")
	want := "llama-3.3-70b"
	if got != want {
		t.Fatalf("Resolve(\"\", cerebras) = %q, want %q", got, want)
	}
}

func TestResolveCaseAndWhitespaceInsensitive(t *testing.T) {
	m := New(nil)
	got := m.Resolve("  Llama-70B  ", "nvidia")
	want := "meta/llama-3.3-70b-instruct"
	if got != want {
		t.Fatalf("Resolve with mixed case/whitespace = %q, want %q", got, want)
	}
}

func TestResolvePassThroughUnknownModel(t *testing.T) {
	m := New(nil)
	got := m.Resolve("some/unknown-name", "cerebras")
	if got != "some/unknown-name" {
		t.Fatalf("expected pass-through, got %q", got)
	}
}

func TestResolvePassThroughKnownModelUnknownProvider(t *testing.T) {
	m := New(nil)
	got := m.Resolve("llama-70b", "mystery-provider")
	if got != "llama-70b" {
		t.Fatalf("expected pass-through for unmapped provider, got %q", got)
	}
}

func TestCustomMappingsMergeOverSeed(t *testing.T) {
	m := New(map[string]map[string]string{
		"LLAMA-70B": {"cerebras": "custom-override"},
	})
	got := m.Resolve("llama-70b", "cerebras")
	if got != "custom-override" {
		t.Fatalf("expected custom override to win, got %q", got)
	}
}

func TestResolveIdempotentOnSecondApplication(t *testing.T) {
	// Applying Resolve to its own output for the same provider must be
	// stable: "llama-70b" resolves to "llama-3.3-70b" for cerebras, and
	// "llama-3.3-70b" is itself a seed key that maps to the same name.
	m := New(nil)
	first := m.Resolve("llama-70b", "cerebras")
	second := m.Resolve(first, "cerebras")
	if second != first {
		t.Fatalf("Resolve not idempotent: %q then %q", first, second)
	}
}
