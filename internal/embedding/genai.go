package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/B-A-M-N/amnesic/internal/klog"
)

// maxBatchSize is the largest single EmbedContent request the API accepts.
const maxBatchSize = 100

func int32Ptr(i int32) *int32 { return &i }

// GenAIEngine is the kernel's default, network-backed EmbeddingEngine
// adapter, wrapping Google's Gemini embedding API. The embedding model
// itself remains an external collaborator; this is one concrete adapter
// satisfying the EmbeddingEngine contract.
type GenAIEngine struct {
	client     *genai.Client
	model      string
	dimensions int32
}

// NewGenAIEngine constructs a GenAIEngine. model defaults to
// "gemini-embedding-001"; dimensions defaults to 3072.
func NewGenAIEngine(ctx context.Context, apiKey, model string, dimensions int32) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai: API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimensions == 0 {
		dimensions = 3072
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("genai: create client: %w", err)
	}

	return &GenAIEngine{client: client, model: model, dimensions: dimensions}, nil
}

func (e *GenAIEngine) Name() string   { return "genai:" + e.model }
func (e *GenAIEngine) Dimensions() int { return int(e.dimensions) }

func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedChunk(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("genai: no embeddings returned")
	}
	return out[0], nil
}

func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) <= maxBatchSize {
		return e.embedChunk(ctx, texts)
	}

	all := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("genai: batch [%d:%d]: %w", start, end, err)
		}
		all = append(all, chunk...)
	}
	return all, nil
}

func (e *GenAIEngine) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{OutputDimensionality: int32Ptr(e.dimensions)})
	if err != nil {
		klog.Error(klog.CategoryKernel, "genai embed failed: %v", err)
		return nil, fmt.Errorf("genai: embed: %w", err)
	}

	out := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}
