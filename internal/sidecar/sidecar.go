// Package sidecar implements the kernel's persistent knowledge store — a
// disk-backed, thread-safe key/value ledger with fuzzy semantic recall,
// grounded on the Python SharedSidecar and the teacher's vector-backed
// LocalStore. Unlike the Python reference (a process-wide singleton), the
// Sidecar here is constructed explicitly so callers control its lifetime
// and its cache directory.
package sidecar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/B-A-M-N/amnesic/internal/embedding"
	"github.com/B-A-M-N/amnesic/internal/klog"
)

// Fact is one entry in the knowledge ledger.
type Fact struct {
	Value    string         `json:"value"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SemanticHit is one result of a fuzzy recall query.
type SemanticHit struct {
	Key     string
	Content string
	Score   float64
}

// Sidecar is a persistent, thread-safe shared knowledge store. One mutex
// serializes every read/write of the knowledge map and the backing file;
// there is no separate lock for the vector index, since the index is
// always rebuilt from the same ledger and never used to restore it.
type Sidecar struct {
	mu sync.Mutex

	cacheDir  string
	cacheFile string

	knowledge map[string]Fact
	vectors   map[string][]float32

	engine embedding.EmbeddingEngine
	ann    *sqliteVecIndex // nil unless the optional ANN backend initialized
}

// New constructs a Sidecar rooted at cacheDir, loading any existing ledger
// from "<cacheDir>/brain.json". engine may be nil, in which case semantic
// recall degrades to substring matching over stored values.
func New(cacheDir string, engine embedding.EmbeddingEngine) (*Sidecar, error) {
	if cacheDir == "" {
		cacheDir = ".amnesic_cache"
	}
	s := &Sidecar{
		cacheDir:  cacheDir,
		cacheFile: filepath.Join(cacheDir, "brain.json"),
		knowledge: make(map[string]Fact),
		vectors:   make(map[string][]float32),
		engine:    engine,
	}
	if err := s.loadFromDisk(); err != nil {
		klog.Warn(klog.CategorySidecar, "failed to load ledger from %s: %v", s.cacheFile, err)
	}

	if engine != nil {
		if idx, err := newSQLiteVecIndex(cacheDir, engine.Dimensions()); err == nil {
			s.ann = idx
			s.rebuildANNLocked(context.Background())
		} else {
			klog.Debug(klog.CategorySidecar, "sqlite-vec ANN unavailable, using brute-force cosine: %v", err)
		}
	}
	return s, nil
}

// Ingest adds or replaces a fact, indexing it for semantic recall and
// persisting the ledger to disk.
func (s *Sidecar) Ingest(ctx context.Context, key, value, typ string, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if typ == "" {
		typ = "text_content"
	}
	s.knowledge[key] = Fact{Value: value, Type: typ, Metadata: metadata}

	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, value)
		if err != nil {
			klog.Warn(klog.CategorySidecar, "embedding failed for key %q: %v", key, err)
		} else {
			s.vectors[key] = vec
			if s.ann != nil {
				if err := s.ann.upsert(key, vec); err != nil {
					klog.Warn(klog.CategorySidecar, "ANN upsert failed for key %q: %v", key, err)
				}
			}
		}
	}

	s.saveToDiskLocked()
	return nil
}

// QuerySemantic performs a fuzzy conceptual search over the ledger,
// returning at most k hits ordered by descending score.
func (s *Sidecar) QuerySemantic(ctx context.Context, query string, k int) ([]SemanticHit, error) {
	if k <= 0 {
		k = 3
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return s.queryKeywordLocked(query, k), nil
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sidecar: embed query: %w", err)
	}

	if s.ann != nil {
		hits, err := s.ann.search(queryVec, k)
		if err == nil {
			out := make([]SemanticHit, 0, len(hits))
			for _, h := range hits {
				fact, ok := s.knowledge[h.key]
				if !ok {
					continue
				}
				out = append(out, SemanticHit{Key: h.key, Content: fact.Value, Score: h.score})
			}
			return out, nil
		}
		klog.Warn(klog.CategorySidecar, "ANN search failed, falling back to brute force: %v", err)
	}

	return s.queryBruteForceLocked(queryVec, k), nil
}

func (s *Sidecar) queryBruteForceLocked(queryVec []float32, k int) []SemanticHit {
	type scored struct {
		key   string
		score float64
	}
	candidates := make([]scored, 0, len(s.vectors))
	for key, vec := range s.vectors {
		candidates = append(candidates, scored{key: key, score: embedding.CosineSimilarity(queryVec, vec)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]SemanticHit, 0, len(candidates))
	for _, c := range candidates {
		fact := s.knowledge[c.key]
		out = append(out, SemanticHit{Key: c.key, Content: fact.Value, Score: c.score})
	}
	return out
}

// queryKeywordLocked is the no-embedding-engine fallback: case-insensitive
// substring match on key or value, every hit scored 1.0 and ordered by key,
// for offline/test configurations.
func (s *Sidecar) queryKeywordLocked(query string, k int) []SemanticHit {
	type scored struct {
		key   string
		score float64
	}
	var candidates []scored
	for key, fact := range s.knowledge {
		if containsFold(fact.Value, query) || containsFold(key, query) {
			candidates = append(candidates, scored{key: key, score: 1.0})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].key < candidates[j].key })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]SemanticHit, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, SemanticHit{Key: c.key, Content: s.knowledge[c.key].Value, Score: c.score})
	}
	return out
}

// QueryExact looks up a fact by its exact symbolic key.
func (s *Sidecar) QueryExact(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fact, ok := s.knowledge[key]
	if !ok {
		return "", false
	}
	return fact.Value, true
}

// Delete removes a fact by key, persisting the change.
func (s *Sidecar) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.knowledge[key]; !ok {
		return
	}
	delete(s.knowledge, key)
	delete(s.vectors, key)
	if s.ann != nil {
		_ = s.ann.delete(key)
	}
	s.saveToDiskLocked()
}

// All flattens the ledger into a key->value view, for the CLI's "backpack"
// inspection command.
func (s *Sidecar) All() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.knowledge))
	for k, f := range s.knowledge {
		out[k] = f.Value
	}
	return out
}

// Count reports the number of facts currently archived, for the Pager's
// L3 tier statistics.
func (s *Sidecar) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.knowledge)
}

// Reset clears the ledger in memory and on disk.
func (s *Sidecar) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge = make(map[string]Fact)
	s.vectors = make(map[string][]float32)
	if s.ann != nil {
		_ = s.ann.close()
		s.ann = nil
	}
	if err := os.Remove(s.cacheFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close releases any resources held by the optional ANN backend.
func (s *Sidecar) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ann != nil {
		return s.ann.close()
	}
	return nil
}

func (s *Sidecar) saveToDiskLocked() {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		klog.Error(klog.CategorySidecar, "failed to create cache dir %s: %v", s.cacheDir, err)
		return
	}
	data, err := json.MarshalIndent(s.knowledge, "", "  ")
	if err != nil {
		klog.Error(klog.CategorySidecar, "failed to marshal ledger: %v", err)
		return
	}
	if err := os.WriteFile(s.cacheFile, data, 0o644); err != nil {
		klog.Error(klog.CategorySidecar, "failed to write ledger to %s: %v", s.cacheFile, err)
	}
}

func (s *Sidecar) loadFromDisk() error {
	data, err := os.ReadFile(s.cacheFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var loaded map[string]Fact
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	s.knowledge = loaded
	return nil
}

// rebuildANNLocked repopulates the optional ANN index and the brute-force
// vector cache from the JSON ledger, which remains the single source of
// truth: the ANN index's vectors.db file is written from the ledger and is
// never read back to restore it.
func (s *Sidecar) rebuildANNLocked(ctx context.Context) {
	if s.engine == nil {
		return
	}
	for key, fact := range s.knowledge {
		vec, err := s.engine.Embed(ctx, fact.Value)
		if err != nil {
			klog.Warn(klog.CategorySidecar, "rebuild: embedding failed for key %q: %v", key, err)
			continue
		}
		s.vectors[key] = vec
		if s.ann != nil {
			if err := s.ann.upsert(key, vec); err != nil {
				klog.Warn(klog.CategorySidecar, "rebuild: ANN upsert failed for key %q: %v", key, err)
			}
		}
	}
}

func containsFold(haystack, needle string) bool {
	return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
