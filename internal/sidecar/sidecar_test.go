package sidecar

import (
	"context"
	"testing"
)

type fakeEngine struct {
	vectors map[string][]float32
}

func (f *fakeEngine) Name() string   { return "fake" }
func (f *fakeEngine) Dimensions() int { return 4 }

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 0}, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestIngestAndQueryExact(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := s.Ingest(ctx, "fact.1", "the sky is blue", "text_content", nil); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	val, ok := s.QueryExact("fact.1")
	if !ok || val != "the sky is blue" {
		t.Fatalf("expected exact hit, got %q ok=%v", val, ok)
	}
}

func TestQuerySemanticKeywordFallback(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	s.Ingest(ctx, "fact.1", "hello world", "text_content", nil)
	s.Ingest(ctx, "fact.2", "goodbye moon", "text_content", nil)

	hits, err := s.QuerySemantic(ctx, "hello", 5)
	if err != nil {
		t.Fatalf("QuerySemantic: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "fact.1" {
		t.Fatalf("expected one hit for fact.1, got %+v", hits)
	}
}

func TestQuerySemanticWithEngineRanksBySimilarity(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{vectors: map[string][]float32{
		"cat": {1, 0, 0, 0},
		"dog": {0.9, 0.1, 0, 0},
		"car": {0, 0, 1, 0},
	}}
	s, err := New(dir, engine)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	s.Ingest(ctx, "animal.cat", "cat", "text_content", nil)
	s.Ingest(ctx, "animal.dog", "dog", "text_content", nil)
	s.Ingest(ctx, "vehicle.car", "car", "text_content", nil)

	hits, err := s.QuerySemantic(ctx, "cat", 2)
	if err != nil {
		t.Fatalf("QuerySemantic: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top-2 hits, got %d", len(hits))
	}
	if hits[0].Key != "animal.cat" {
		t.Fatalf("expected closest hit to be animal.cat, got %s", hits[0].Key)
	}
}

func TestDeleteRemovesFact(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	s.Ingest(ctx, "fact.1", "value", "text_content", nil)
	s.Delete("fact.1")
	if _, ok := s.QueryExact("fact.1"); ok {
		t.Fatal("expected fact.1 to be deleted")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1.Ingest(ctx, "fact.1", "persisted value", "text_content", nil)

	s2, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	val, ok := s2.QueryExact("fact.1")
	if !ok || val != "persisted value" {
		t.Fatalf("expected persisted fact to survive reload, got %q ok=%v", val, ok)
	}
}

func TestResetClearsLedger(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Ingest(ctx, "fact.1", "value", "text_content", nil)
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok := s.QueryExact("fact.1"); ok {
		t.Fatal("expected ledger cleared after reset")
	}
}
