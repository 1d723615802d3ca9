package driver

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRegistryNewLocal(t *testing.T) {
	r := NewRegistry()
	d, err := r.New(Config{Provider: "local"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Name() == "" {
		t.Fatal("expected non-empty driver name")
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry()
	_, err := r.New(Config{Provider: "does-not-exist"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLocalDriverEmbedIsDeterministic(t *testing.T) {
	r := NewRegistry()
	d, _ := r.New(Config{Provider: "local"})
	v1, err := d.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	v2, _ := d.Embed(context.Background(), "hello world")
	if len(v1) != len(v2) {
		t.Fatal("expected same-length vectors")
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("expected deterministic embedding, differed at index %d", i)
		}
	}
}

func TestLocalDriverGenerateStructuredProducesValidJSON(t *testing.T) {
	r := NewRegistry()
	d, _ := r.New(Config{Provider: "local"})
	out, err := d.GenerateStructured(context.Background(), "system", "stage the config file", nil, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var parsed struct {
		ThoughtProcess string `json:"thought_process"`
		ToolCall       string `json:"tool_call"`
		Target         string `json:"target"`
	}
	if err := json.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("expected valid JSON, got error: %v (body=%s)", err, out)
	}
	if parsed.ToolCall == "" {
		t.Fatal("expected non-empty tool_call")
	}
}

func TestLocalDriverTracksTokenUsage(t *testing.T) {
	r := NewRegistry()
	d, _ := r.New(Config{Provider: "local"})
	if d.LastTokenUsage() != 0 {
		t.Fatal("expected zero token usage before any call")
	}
	_, _ = d.GenerateRaw(context.Background(), "sys", "a reasonably long user prompt here")
	if d.LastTokenUsage() <= 0 {
		t.Fatal("expected token usage to be tracked after a call")
	}
}

func TestFromEnvDefaultsToLocal(t *testing.T) {
	r := NewRegistry()
	cfg := FromEnv(r)
	if cfg.Provider != "local" {
		t.Fatalf("expected default provider 'local', got %q", cfg.Provider)
	}
}
