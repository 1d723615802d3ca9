// Package embedding defines the embedding-model contract the kernel treats
// as an external collaborator (spec §1): the kernel only depends on the
// EmbeddingEngine interface. This file also ships a deterministic
// keyword-bucket fallback used when no network-backed engine is configured,
// grounded on the Python reference's keyword-only Sidecar fallback.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// EmbeddingEngine generates vector embeddings for text.
type EmbeddingEngine interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Name() string
}

// HealthChecker is an optional capability: engines backed by a live service
// can report reachability before a batch operation is attempted.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// KeywordEngine is a deterministic, dependency-free EmbeddingEngine used as
// a fallback (tests, offline mode) when no real embedding backend is wired
// up. It hashes whitespace-separated tokens into a fixed-width bucket
// vector — good enough to exercise relevance scoring and ANN code paths
// without a network call, not a substitute for a real embedding model.
type KeywordEngine struct {
	dims int
}

// NewKeywordEngine returns a KeywordEngine with the given bucket width.
func NewKeywordEngine(dims int) *KeywordEngine {
	if dims <= 0 {
		dims = 64
	}
	return &KeywordEngine{dims: dims}
}

func (k *KeywordEngine) Name() string      { return "keyword" }
func (k *KeywordEngine) Dimensions() int    { return k.dims }

func (k *KeywordEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, k.dims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum32()) % k.dims
		if idx < 0 {
			idx += k.dims
		}
		vec[idx]++
	}
	normalize(vec)
	return vec, nil
}

func (k *KeywordEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := k.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors, used by the Gatekeeper's relevance layer and the Sidecar's
// brute-force ANN fallback.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
