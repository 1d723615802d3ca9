package driver

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
)

// localDriver is a deterministic, network-free stand-in for a real model
// backend, grounded on amnesic/drivers/local.py — which itself is just an
// OpenAIDriver pointed at a local base_url. Since this port ships no
// concrete network-backed provider (spec §1), localDriver instead produces
// reproducible output purely from its input, so tests and the reference
// CLI have a working end-to-end Driver without any credentials or server.
type localDriver struct {
	model      string
	dimensions int
	lastTokens int
}

func newLocalDriver(cfg Config) (Driver, error) {
	dims := 32
	model := cfg.Model
	if model == "" {
		model = "local-deterministic"
	}
	return &localDriver{model: model, dimensions: dims}, nil
}

func (d *localDriver) Name() string { return "local:" + d.model }

func (d *localDriver) LastTokenUsage() int { return d.lastTokens }

// Embed hashes text into a fixed-size pseudo-embedding. Cosine similarity
// over these vectors is meaningless beyond exact/near-exact text matches,
// which is sufficient for exercising the Gatekeeper's Layer4Relevance and
// the Sidecar's semantic recall in tests without a real embedder.
func (d *localDriver) Embed(_ context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, d.dimensions)
	for i := range vec {
		b := sum[i%len(sum)]
		vec[i] = float32(b) / 255.0
	}
	return vec, nil
}

// GenerateStructured echoes back a minimal, always-valid proposal-shaped
// JSON document: a halt_and_ask targeting the user prompt. A real driver
// would call out to a model; this one exists so the Proposer's healer
// pipeline and the Session loop have something deterministic to drive
// against in tests.
func (d *localDriver) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, _ []byte, _ int) ([]byte, error) {
	d.lastTokens = ApproxTokens(systemPrompt, userPrompt)
	target := strings.TrimSpace(userPrompt)
	if len(target) > 120 {
		target = target[:120]
	}
	reply := fmt.Sprintf(`{"thought_process":"local driver deterministic stub","tool_call":"halt_and_ask","target":%q}`, target)
	return []byte(reply), nil
}

func (d *localDriver) GenerateStructuredStreaming(ctx context.Context, systemPrompt, userPrompt string, schema []byte, retries int, onToken func(string)) ([]byte, error) {
	reply, err := d.GenerateStructured(ctx, systemPrompt, userPrompt, schema, retries)
	if err != nil {
		return nil, err
	}
	if onToken != nil {
		onToken(string(reply))
	}
	return reply, nil
}

func (d *localDriver) GenerateRaw(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	d.lastTokens = ApproxTokens(systemPrompt, userPrompt)
	return "local driver deterministic stub echo: " + strings.TrimSpace(userPrompt), nil
}
